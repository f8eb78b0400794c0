// Package es indexes training records in Elasticsearch for review.
package es

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Sandro385/expert-tune/internal/config"
	"github.com/Sandro385/expert-tune/internal/model"
	"github.com/Sandro385/expert-tune/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const recordMapping = `{
	"mappings": {
		"properties": {
			"id":          { "type": "keyword" },
			"job_id":      { "type": "keyword" },
			"username":    { "type": "keyword" },
			"domain":      { "type": "keyword" },
			"position":    { "type": "integer" },
			"prompt":      { "type": "text" },
			"completion":  { "type": "text" },
			"indexed_at":  { "type": "date" }
		}
	}
}`

// RecordIndex writes TrainingRecordDocuments into one index.
type RecordIndex struct {
	client *elasticsearch.Client
	index  string
}

// InitES creates the client and the index if it does not exist yet.
func InitES(esCfg config.ElasticsearchConfig) (*RecordIndex, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
	})
	if err != nil {
		return nil, err
	}
	idx := &RecordIndex{client: client, index: esCfg.IndexName}
	if err := idx.createIndexIfNotExists(); err != nil {
		return nil, err
	}
	return idx, nil
}

func (r *RecordIndex) createIndexIfNotExists() error {
	res, err := r.client.Indices.Exists([]string{r.index})
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.index, err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("index '%s' already exists", r.index)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("unexpected status %d checking index %s", res.StatusCode, r.index)
	}

	res, err = r.client.Indices.Create(r.index, r.client.Indices.Create.WithBody(strings.NewReader(recordMapping)))
	if err != nil {
		return fmt.Errorf("create index %s: %w", r.index, err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("create index %s: %s", r.index, res.String())
	}
	log.Infof("index '%s' created", r.index)
	return nil
}

// IndexRecords indexes docs, one request per document, refreshing after the last one.
func (r *RecordIndex) IndexRecords(ctx context.Context, docs []model.TrainingRecordDocument) error {
	for i, doc := range docs {
		body, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		req := esapi.IndexRequest{
			Index:      r.index,
			DocumentID: doc.ID,
			Body:       bytes.NewReader(body),
		}
		if i == len(docs)-1 {
			req.Refresh = "true"
		}
		res, err := req.Do(ctx, r.client)
		if err != nil {
			return err
		}
		if res.IsError() {
			msg := res.String()
			res.Body.Close()
			log.Errorf("indexing document %s failed: %s", doc.ID, msg)
			return errors.New("failed to index training record")
		}
		res.Body.Close()
	}
	return nil
}
