package testutil

import (
	"os"
	"testing"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"

	"github.com/AvaProtocol/ap-userop/storage"
)

// GetTestRPCURL is the node used by tests that opt into a live chain.
func GetTestRPCURL() string {
	v := os.Getenv("RPC_URL")
	if v == "" {
		return "https://sepolia.drpc.org"
	}

	return v
}

// TestMustDB opens an in memory storage that is closed when the test ends.
func TestMustDB(t testing.TB) storage.Storage {
	db, err := storage.NewInMemory()
	if err != nil {
		t.Fatalf("testutil: cannot open storage: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func GetLogger() sdklogging.Logger {
	logger, err := sdklogging.NewZapLogger(sdklogging.Development)
	if err != nil {
		panic(err)
	}
	return logger
}
