package archive

import (
	"testing"
	"time"
)

func TestObjectPath(t *testing.T) {
	at := time.Date(2025, 3, 9, 23, 30, 0, 0, time.FixedZone("WIB", 7*3600))
	got := ObjectPath("paypal", "WH-1", at)
	if got != "webhooks/paypal/2025/03/09/WH-1.json" {
		t.Fatalf("got=%s", got)
	}
}
