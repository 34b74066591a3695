package services

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

const (
	// Standard Azurite account name and key
	azuriteAccountName = "devstoreaccount1"
	azuriteAccountKey  = "Eby8vdM02xNOcqFlqUwJPLlmEtlCDXJ1OUzFT50uSRZ6IFsuFq2UVErCz4I6tq/K1SZFPTOtr/KBHBeksoGMGw=="
)

var (
	credOnce   sync.Once
	sharedCred azcore.TokenCredential
	credErr    error
)

// isLocal reports whether a storage URL points at Azurite (plain http).
func isLocal(serviceURL string) bool {
	return strings.HasPrefix(serviceURL, "http://")
}

func getAzuriteCredentials() (string, string) {
	return azuriteAccountName, azuriteAccountKey
}

// DefaultCredential returns the process-wide DefaultAzureCredential, creating
// it on first use so that every service shares one token cache.
func DefaultCredential() (azcore.TokenCredential, error) {
	credOnce.Do(func() {
		slog.Info("using default Azure credentials")
		sharedCred, credErr = azidentity.NewDefaultAzureCredential(nil)
	})
	return sharedCred, credErr
}
