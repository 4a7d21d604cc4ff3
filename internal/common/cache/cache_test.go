package cache

import "testing"

func TestKey(t *testing.T) {
	t.Parallel()

	if got := Key("affiliatepay", "otp-resend", "01HX"); got != "affiliatepay:otp-resend:01HX" {
		t.Fatalf("Key = %q", got)
	}
	if got := Key("", "otp-resend", "01HX"); got != "otp-resend:01HX" {
		t.Fatalf("Key without prefix = %q", got)
	}
}

func TestConfigEnabled(t *testing.T) {
	t.Parallel()

	if (Config{}).Enabled() {
		t.Fatal("empty address must disable the cache")
	}
	if !(Config{Addr: "localhost:6379"}).Enabled() {
		t.Fatal("address must enable the cache")
	}
}
