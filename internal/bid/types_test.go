package bid

import "testing"

func TestPublishedAtDisplay(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"2026-08-28T10:30:00", "28/08/2026 10:30"},
		{"2026-08-28 10:30:00.000", "28/08/2026 10:30"},
		{"2026-08-28", "28/08/2026 00:00"},
		{"garbled", "garbled"},
	}
	for _, c := range cases {
		r := Record{PublishedAt: c.raw}
		if got := r.PublishedAtDisplay(); got != c.want {
			t.Errorf("PublishedAtDisplay(%q) = %q, want %q", c.raw, got, c.want)
		}
	}
}

func TestEndDateDisplay(t *testing.T) {
	if got := (Record{ContractEndDate: "2027-12-31"}).EndDateDisplay(); got != "31/12/2027" {
		t.Errorf("EndDateDisplay = %q", got)
	}
	if got := (Record{}).EndDateDisplay(); got != "" {
		t.Errorf("empty end date must display as empty, got %q", got)
	}
}
