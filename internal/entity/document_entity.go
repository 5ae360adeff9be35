package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// DocumentID is the single canonical document identifier used by the session
// engine. The document service may send ids as JSON strings or numbers; both
// decode to the same decimal string.
type DocumentID string

func (id *DocumentID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = DocumentID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("document id must be a string or number: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*id = DocumentID(strconv.FormatInt(i, 10))
		return nil
	}
	*id = DocumentID(n.String())
	return nil
}

func (id DocumentID) String() string {
	return string(id)
}

// DocumentRef is owned by the document store; the session engine only keeps ids.
type DocumentRef struct {
	Id        DocumentID `json:"id"`
	Filename  string     `json:"filename"`
	CreatedAt time.Time  `json:"created_at"`
}

func DocumentIDs(docs []DocumentRef) []DocumentID {
	ids := make([]DocumentID, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.Id)
	}
	return ids
}
