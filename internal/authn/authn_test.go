package authn

import (
	"os"
	"testing"
	"time"
)

func withSecret(t *testing.T, value string) {
	t.Helper()
	old, had := os.LookupEnv(secretEnvVariable)
	if err := os.Setenv(secretEnvVariable, value); err != nil {
		t.Fatalf("setenv: %v", err)
	}
	ResetSecretForTests()
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(secretEnvVariable, old)
		} else {
			_ = os.Unsetenv(secretEnvVariable)
		}
		ResetSecretForTests()
	})
}

func TestIssueDecodeRoundTrip(t *testing.T) {
	withSecret(t, "test-secret-value")

	token, err := Issue("subscriber-1", 42, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	got, err := Decode("Bearer " + token)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != 42 {
		t.Fatalf("Decode authorization = %d, want 42", got)
	}
}

func TestDecodeEmptyHeaderIsOpaquePassthrough(t *testing.T) {
	withSecret(t, "test-secret-value")
	got, err := Decode("")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got != 0 {
		t.Fatalf("Decode empty header = %d, want 0", got)
	}
}

func TestDecodeRejectsGarbageToken(t *testing.T) {
	withSecret(t, "test-secret-value")
	if _, err := Decode("Bearer not-a-jwt"); err != ErrInvalidToken {
		t.Fatalf("Decode garbage token = %v, want ErrInvalidToken", err)
	}
}

func TestDecodeMissingSecretFails(t *testing.T) {
	withSecret(t, "")
	if _, err := Decode("Bearer whatever"); err != errMissingSecret {
		t.Fatalf("Decode with no secret = %v, want errMissingSecret", err)
	}
}

func TestIssueRejectsEmptySubject(t *testing.T) {
	withSecret(t, "test-secret-value")
	if _, err := Issue("   ", 1, time.Hour); err == nil {
		t.Fatal("expected error for empty subject")
	}
}

func TestTwoTokensHaveDistinctJTI(t *testing.T) {
	withSecret(t, "test-secret-value")
	a, err := Issue("sub", 1, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	b, err := Issue("sub", 1, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if a == b {
		t.Fatal("expected distinct tokens due to distinct jti claims")
	}
}
