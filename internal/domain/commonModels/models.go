package commonModels

import (
	"github.com/akolanti/ProposalAPI/internal/config"
)

type DocType string

var PDF DocType = "PDF"
var DOCX DocType = "DOCX"
var TXT DocType = "TXT"
var HTML DocType = "HTML"
var ERR DocType = "ERROR"

// DocumentKind is the folder a source document is uploaded under.
type DocumentKind string

const (
	KindRFP          DocumentKind = "rfp"
	KindReference    DocumentKind = "reference"
	KindExistingWork DocumentKind = "existing_work"
	KindConcept      DocumentKind = "concept"
	KindDraft        DocumentKind = "draft"
)

func (k DocumentKind) Valid() bool {
	switch k {
	case KindRFP, KindReference, KindExistingWork, KindConcept, KindDraft:
		return true
	}
	return false
}

// Index returns the vector index a kind is embedded into; empty when the kind is
// only stored as a blob.
func (k DocumentKind) Index() string {
	switch k {
	case KindReference:
		return config.ReferenceIndexName
	case KindExistingWork:
		return config.ExistingWorkIndexName
	}
	return ""
}

// AttributeNames lists the three descriptive attributes carried in vector keys.
func (k DocumentKind) AttributeNames() [3]string {
	switch k {
	case KindReference:
		return [3]string{"donor", "sector", "year"}
	case KindExistingWork:
		return [3]string{"organization", "project_type", "region"}
	}
	return [3]string{"attr1", "attr2", "attr3"}
}

func KindForIndex(index string) DocumentKind {
	switch index {
	case config.ReferenceIndexName:
		return KindReference
	case config.ExistingWorkIndexName:
		return KindExistingWork
	}
	return DocumentKind(index)
}

// ChunkMetadata describes one chunk as stored next to its vector.
type ChunkMetadata struct {
	JobID        string    `json:"job_id"`
	Attrs        [3]string `json:"attrs"`
	DocumentName string    `json:"document_name"`
	ChunkIndex   int       `json:"chunk_index"`
	TotalChunks  int       `json:"total_chunks"`
	StartOffset  int       `json:"start_offset"`
	Text         string    `json:"text,omitempty"`
}

// ChunkMatch is one similarity hit.
type ChunkMatch struct {
	Key      string        `json:"key"`
	Meta     ChunkMetadata `json:"metadata"`
	Distance float64       `json:"distance"`
}

// Document is a source document rebuilt from the blob store or its chunks.
type Document struct {
	JobID        string    `json:"job_id"`
	Name         string    `json:"document_name"`
	Index        string    `json:"index"`
	Attrs        [3]string `json:"attrs"`
	Text         string    `json:"text"`
	ChunkCount   int       `json:"chunk_count"`
	MeanDistance float64   `json:"mean_distance,omitempty"`
	FromChunks   bool      `json:"from_chunks,omitempty"`
}
