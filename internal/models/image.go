// Package models defines core data structures for image records, queries, and search results.
package models

import "time"

// Image is one catalogue record. UUID is the join key with every vector index.
type Image struct {
	UUID        string                 `json:"uuid"`
	Filename    string                 `json:"filename"`
	Filepath    string                 `json:"filepath"`
	Title       string                 `json:"title"`
	Description string                 `json:"description"`
	FileSize    int64                  `json:"file_size"`
	FileType    string                 `json:"file_type"`
	Width       int                    `json:"width,omitempty"`
	Height      int                    `json:"height,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	HashValue   string                 `json:"hash_value,omitempty"`
	Metadata    map[string]interface{} `json:"metadata"`
	Tags        []string               `json:"tags"`
}

// HasTag reports whether the image carries tag (exact match).
func (img *Image) HasTag(tag string) bool {
	for _, t := range img.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the image carries at least one of tags. An empty tags list matches.
func (img *Image) HasAnyTag(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		if img.HasTag(t) {
			return true
		}
	}
	return false
}

// ImageInput is the input for creating an image record from uploaded bytes.
type ImageInput struct {
	Filename    string                 `json:"filename"`
	Data        []byte                 `json:"-"`
	Title       string                 `json:"title,omitempty"`
	Description string                 `json:"description,omitempty"`
	Tags        []string               `json:"tags,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	// SourcePath, when set, is used as the record's filepath instead of copying Data into the upload dir.
	SourcePath string `json:"-"`
}

// ImageUpdate is a partial update. Nil fields are left unchanged.
type ImageUpdate struct {
	Title       *string                `json:"title,omitempty"`
	Description *string                `json:"description,omitempty"`
	Tags        *[]string              `json:"tags,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// IsEmpty reports whether the update changes nothing.
func (u *ImageUpdate) IsEmpty() bool {
	return u.Title == nil && u.Description == nil && u.Tags == nil && u.Metadata == nil
}

// ImageFilter selects a page of images for listing.
type ImageFilter struct {
	Page     int
	PageSize int
	SortBy   string
	Order    string
	Range    DateRange
	Tags     []string
}

// TagCount is a tag with the number of images carrying it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// MetadataField describes one metadata key seen across the catalogue.
type MetadataField struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
	Type  string `json:"type"`
}

// WriteResult reports what a record mutation did to the vector indices.
type WriteResult struct {
	Image          *Image `json:"image"`
	VectorsIndexed bool   `json:"vectors_indexed"`
	Persisted      bool   `json:"persisted"`
}
