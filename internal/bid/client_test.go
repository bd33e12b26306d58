package bid

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(srv.URL, "SC", "20019")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestSessionToken(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<!DOCTYPE html><html><head>
			<meta charset="utf-8">
			<meta name="csrf-token" content="tok-123">
			</head><body></body></html>`))
	}))

	token, err := c.SessionToken(context.Background())
	if err != nil {
		t.Fatalf("SessionToken: %v", err)
	}
	if token != "tok-123" {
		t.Errorf("token = %q, want tok-123", token)
	}
}

func TestSessionTokenMissingMeta(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head></head><body>no token here</body></html>`))
	}))

	if _, err := c.SessionToken(context.Background()); err == nil {
		t.Fatal("expected error for missing csrf-token meta")
	}
}

func TestFetchChallenge(t *testing.T) {
	image := []byte{0x89, 'P', 'N', 'G'}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/get-captcha-base64" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(base64.StdEncoding.EncodeToString(image) + "\n"))
	}))

	got, err := c.FetchChallenge(context.Background())
	if err != nil {
		t.Fatalf("FetchChallenge: %v", err)
	}
	if string(got) != string(image) {
		t.Errorf("image = %v, want %v", got, image)
	}
}

func TestFetchChallengeDataURI(t *testing.T) {
	image := []byte("imgbytes")
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data:image/png;base64," + base64.StdEncoding.EncodeToString(image)))
	}))

	got, err := c.FetchChallenge(context.Background())
	if err != nil {
		t.Fatalf("FetchChallenge: %v", err)
	}
	if string(got) != string(image) {
		t.Errorf("image = %q, want %q", got, image)
	}
}

func TestSubmitQuery(t *testing.T) {
	var gotToken, gotCaptcha, gotDate, gotClub string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/busca-json" {
			http.NotFound(w, r)
			return
		}
		r.ParseForm()
		gotToken = r.Header.Get("X-CSRF-TOKEN")
		gotCaptcha = r.PostFormValue("captcha")
		gotDate = r.PostFormValue("data")
		gotClub = r.PostFormValue("codigo_clube")
		w.Write([]byte(`[]`))
	}))

	body, err := c.SubmitQuery(context.Background(), "tok", "abc12", "10/05/2026")
	if err != nil {
		t.Fatalf("SubmitQuery: %v", err)
	}
	if string(body) != "[]" {
		t.Errorf("body = %q, want []", body)
	}
	if gotToken != "tok" || gotCaptcha != "abc12" || gotDate != "10/05/2026" || gotClub != "20019" {
		t.Errorf("form = token %q captcha %q date %q club %q", gotToken, gotCaptcha, gotDate, gotClub)
	}
}

func TestFetchAssetMissingIsNotError(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	data, err := c.FetchAsset(context.Background(), c.PhotoURL("777"))
	if err != nil {
		t.Fatalf("FetchAsset: %v", err)
	}
	if data != nil {
		t.Errorf("data = %v, want nil for missing asset", data)
	}
}

func TestFetchAsset(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/foto-atleta/") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("jpeg-bytes"))
	}))

	data, err := c.FetchAsset(context.Background(), c.PhotoURL("777"))
	if err != nil {
		t.Fatalf("FetchAsset: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("data = %q", data)
	}
}

func TestParseRecords(t *testing.T) {
	payload := `[{
		"codigo_atleta": "123456",
		"nome": "JOAO DA SILVA",
		"apelido": "Joaozinho",
		"contrato_numero": "987",
		"tipocontrato": "Profissional",
		"data_publicacao": "2026-08-28 10:15:00.000",
		"datatermino": "2027-12-31",
		"clube": "Criciuma",
		"data_nascimento": "01/02/2000"
	}]`

	records, err := ParseRecords([]byte(payload))
	if err != nil {
		t.Fatalf("ParseRecords: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len = %d, want 1", len(records))
	}
	r := records[0]
	if r.RecordID != "123456" || r.SubjectName != "JOAO DA SILVA" || r.ContractNumber != "987" {
		t.Errorf("record = %+v", r)
	}
	if r.ContractEndDate != "2027-12-31" {
		t.Errorf("ContractEndDate = %q", r.ContractEndDate)
	}
}

func TestParseRecordsNonListIsEmpty(t *testing.T) {
	for _, body := range []string{`{}`, `{"mensagem":"nada"}`, `null`, `0`} {
		records, err := ParseRecords([]byte(body))
		if err != nil {
			t.Errorf("ParseRecords(%q) error: %v", body, err)
		}
		if len(records) != 0 {
			t.Errorf("ParseRecords(%q) = %v, want empty", body, records)
		}
	}
}

func TestParseRecordsNotJSON(t *testing.T) {
	if _, err := ParseRecords([]byte(`<html>error page</html>`)); err == nil {
		t.Fatal("expected error for non-JSON payload")
	}
}
