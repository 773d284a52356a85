package models

import "time"

// Filing is one normalized SEC filing reference.
type Filing struct {
	Ticker      string    `json:"ticker"`
	CIK         string    `json:"cik"` // zero-padded to 10 digits
	Form        string    `json:"form"`
	AccessionNo string    `json:"accession_no"`
	FiledAt     time.Time `json:"filed_at"`
	Description string    `json:"description,omitempty"`
	DocumentURL string    `json:"document_url"`
	Material    bool      `json:"material,omitempty"` // 8-K items flagged as market-moving
}

// TranscriptDoc is the full text of the most recent earnings call.
type TranscriptDoc struct {
	Ticker  string `json:"ticker"`
	Quarter string `json:"quarter"`
	Text    string `json:"text"`
}

// TranscriptExcerpt is a guidance-bearing passage from an earnings call.
type TranscriptExcerpt struct {
	Ticker  string    `json:"ticker"`
	Quarter string    `json:"quarter"`
	Speaker string    `json:"speaker,omitempty"`
	Text    string    `json:"text"`
	CallAt  time.Time `json:"call_at"`
}
