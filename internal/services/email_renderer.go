package services

import (
	"fmt"
	"html"
	"strings"

	"github.com/rocjay1/rm-recurring/internal/recurring"
)

// RenderErrorSection renders a list of problems as a highlighted HTML block.
func RenderErrorSection(heading string, items []string) string {
	if len(items) == 0 {
		return ""
	}

	var list strings.Builder
	for _, item := range items {
		list.WriteString(fmt.Sprintf("<li>%s</li>", html.EscapeString(item)))
	}

	return fmt.Sprintf(`
		<div style="background-color: #fff4f4; border-left: 5px solid #d13438; padding: 15px; margin-bottom: 20px;">
			<h3 style="color: #d13438; margin-top: 0; font-size: 18px;">%s</h3>
			<ul style="margin-bottom: 0; padding-left: 20px;">
				%s
			</ul>
		</div>
	`, html.EscapeString(heading), list.String())
}

func renderLayout(title, content string) string {
	return fmt.Sprintf(`
		<html>
		<body style="font-family: 'Segoe UI', sans-serif; color: #333; line-height: 1.6; background-color: #f4f4f4; margin: 0; padding: 20px;">
			<div style="max-width: 600px; margin: 0 auto; background: white; border-radius: 8px; overflow: hidden; box-shadow: 0 2px 8px rgba(0,0,0,0.1);">
				<div style="background-color: #d13438; padding: 20px; text-align: center; color: white;">
					<h2 style="margin: 0;">%s</h2>
				</div>
				<div style="padding: 20px;">
					%s
				</div>
			</div>
		</body>
		</html>
	`, html.EscapeString(title), content)
}

// RenderRunSummaryBody renders the email sent after a run with failures.
func RenderRunSummaryBody(result *recurring.ProcessResult) string {
	items := make([]string, len(result.Errors))
	for i, se := range result.Errors {
		if se.DueDate.IsZero() {
			items[i] = fmt.Sprintf("schedule %s (%s): %s", se.ScheduleID, se.Stage, se.Message)
			continue
		}
		items[i] = fmt.Sprintf("%s (due %s, %s): %s", se.Description, se.DueDate, se.Stage, se.Message)
	}

	content := fmt.Sprintf(`
		<p>The recurring payment run for <b>%s</b> finished with %d schedule(s) advanced and %d transaction(s) written.</p>
		%s
		<p>Failed schedules keep their due date and will be retried on the next run.</p>
	`, result.Today, result.Processed, result.Occurrences, RenderErrorSection("Schedules that were not processed", items))

	return renderLayout("Recurring Payments Need Attention", content)
}

// RenderImportErrorBody renders the email sent when a schedule import had
// rejected rows.
func RenderImportErrorBody(filename string, errors []string) string {
	content := fmt.Sprintf(`
		<p>Some rows of <b>%s</b> could not be imported as recurring schedules:</p>
		%s
	`, html.EscapeString(filename), RenderErrorSection("Rejected rows", errors))

	return renderLayout("Schedule Import Failed", content)
}
