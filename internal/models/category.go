package models

// Category classifies ledger transactions on the business dashboard.
// Values are free text; the constants cover the categories the UI offers.
type Category string

const (
	CategoryRent          Category = "Rent"
	CategoryUtilities     Category = "Utilities"
	CategoryPayroll       Category = "Payroll"
	CategorySubscriptions Category = "Software Subscriptions"
	CategoryInsurance     Category = "Insurance"
	CategoryLoans         Category = "Loan Payment"
	CategoryServices      Category = "Professional Services"
	CategoryRetainer      Category = "Client Retainer"
	CategorySales         Category = "Sales"
	CategoryOther         Category = "Other"
)
