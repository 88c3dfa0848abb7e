// Package search keeps an Elasticsearch document per application so the back
// office can find applications by applicant, type or status.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const DefaultIndex = "loan-applications"

var (
	ErrIndexFailed  = errors.New("INDEXING_FAILED")
	ErrSearchFailed = errors.New("SEARCH_FAILED")
)

// Mapping is the index definition used by EnsureIndex.
const Mapping = `{
  "mappings": {
    "properties": {
      "trackingId":     {"type": "keyword"},
      "loanType":       {"type": "keyword"},
      "loanTypeLabel":  {"type": "text"},
      "applicantName":  {"type": "text", "fields": {"raw": {"type": "keyword"}}},
      "accountNumber":  {"type": "keyword"},
      "loanAmount":     {"type": "double"},
      "status":         {"type": "keyword"},
      "score":          {"type": "double"},
      "decision":       {"type": "keyword"},
      "reasons":        {"type": "text"},
      "submittedAt":    {"type": "date"},
      "updatedAt":      {"type": "date"}
    }
  }
}`

// Document is the indexed view of an application.
type Document struct {
	TrackingID    string    `json:"trackingId"`
	LoanType      string    `json:"loanType"`
	LoanTypeLabel string    `json:"loanTypeLabel"`
	ApplicantName string    `json:"applicantName"`
	AccountNumber string    `json:"accountNumber,omitempty"`
	LoanAmount    float64   `json:"loanAmount"`
	Status        string    `json:"status"`
	Score         *float64  `json:"score,omitempty"`
	Decision      string    `json:"decision,omitempty"`
	Reasons       []string  `json:"reasons,omitempty"`
	SubmittedAt   time.Time `json:"submittedAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Query filters a search. Empty fields do not constrain it.
type Query struct {
	Text     string
	LoanType string
	Status   string
	From     int
	Size     int
}

type Result struct {
	Total     int        `json:"total"`
	Documents []Document `json:"documents"`
}

type Index struct {
	client *elasticsearch.Client
	name   string
}

func New(client *elasticsearch.Client, name string) *Index {
	if name == "" {
		name = DefaultIndex
	}
	return &Index{client: client, name: name}
}

func (ix *Index) Name() string { return ix.name }

// Put creates or replaces the document for doc.TrackingID.
func (ix *Index) Put(ctx context.Context, doc Document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("%w: encode document: %v", ErrIndexFailed, err)
	}

	req := esapi.IndexRequest{
		Index:      ix.name,
		DocumentID: doc.TrackingID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, ix.client)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIndexFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("%w: %s: %s", ErrIndexFailed, res.Status(), readError(res.Body))
	}
	return nil
}

// Search runs q against the index, newest first.
func (ix *Index) Search(ctx context.Context, q Query) (*Result, error) {
	if q.Size <= 0 || q.Size > 100 {
		q.Size = 20
	}
	if q.From < 0 {
		q.From = 0
	}

	body, err := json.Marshal(BuildQuery(q))
	if err != nil {
		return nil, fmt.Errorf("%w: encode query: %v", ErrSearchFailed, err)
	}

	req := esapi.SearchRequest{
		Index: []string{ix.name},
		Body:  bytes.NewReader(body),
		From:  &q.From,
		Size:  &q.Size,
	}
	res, err := req.Do(ctx, ix.client)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("%w: %s: %s", ErrSearchFailed, res.Status(), readError(res.Body))
	}

	var raw struct {
		Hits struct {
			Total struct {
				Value int `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source Document `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSearchFailed, err)
	}

	out := &Result{Total: raw.Hits.Total.Value, Documents: make([]Document, 0, len(raw.Hits.Hits))}
	for _, h := range raw.Hits.Hits {
		out.Documents = append(out.Documents, h.Source)
	}
	return out, nil
}

// BuildQuery turns q into an Elasticsearch bool query.
func BuildQuery(q Query) map[string]interface{} {
	must := []interface{}{}
	filter := []interface{}{}

	if text := strings.TrimSpace(q.Text); text != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  text,
				"fields": []string{"applicantName^3", "trackingId^2", "accountNumber^2", "loanTypeLabel"},
				"type":   "best_fields",
			},
		})
	}
	if q.LoanType != "" {
		filter = append(filter, map[string]interface{}{"term": map[string]interface{}{"loanType": q.LoanType}})
	}
	if q.Status != "" {
		filter = append(filter, map[string]interface{}{"term": map[string]interface{}{"status": q.Status}})
	}
	if len(must) == 0 {
		must = append(must, map[string]interface{}{"match_all": map[string]interface{}{}})
	}

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   must,
				"filter": filter,
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"submittedAt": map[string]interface{}{"order": "desc"}},
		},
	}
}

func readError(r io.Reader) string {
	b, _ := io.ReadAll(io.LimitReader(r, 4096))
	return strings.TrimSpace(string(b))
}
