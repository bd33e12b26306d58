package bid

import "time"

// Record is one contract publication as delivered by the registry's query
// endpoint. Field tags follow the registry's wire names; values are never
// mutated after decoding.
type Record struct {
	RecordID         string `json:"codigo_atleta"`
	SubjectName      string `json:"nome"`
	SubjectNickname  string `json:"apelido,omitempty"`
	ContractNumber   string `json:"contrato_numero"`
	ContractType     string `json:"tipocontrato"`
	PublishedAt      string `json:"data_publicacao"`
	ContractEndDate  string `json:"datatermino,omitempty"`
	OrganizationName string `json:"clube"`
	BirthDate        string `json:"data_nascimento,omitempty"`
}

// timestampLayouts covers the formats the registry has been seen emitting.
var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// PublishedAtDisplay renders the publication timestamp in the Brazilian
// convention, DD/MM/YYYY HH:MM. Unparseable values pass through verbatim.
func (r Record) PublishedAtDisplay() string {
	return displayTimestamp(r.PublishedAt, "02/01/2006 15:04")
}

// EndDateDisplay renders the contract end date as DD/MM/YYYY, or "" when
// the contract carries no end date.
func (r Record) EndDateDisplay() string {
	if r.ContractEndDate == "" {
		return ""
	}
	return displayTimestamp(r.ContractEndDate, "02/01/2006")
}

func displayTimestamp(raw, layout string) string {
	for _, l := range timestampLayouts {
		if t, err := time.Parse(l, raw); err == nil {
			return t.Format(layout)
		}
	}
	return raw
}
