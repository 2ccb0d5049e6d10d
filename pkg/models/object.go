package models

import (
	"time"
)

// StoredObject describes one object in a principal's namespace. FileID is
// generated at upload time and persisted as object metadata; Generation is
// assigned by the object store. Together they disambiguate repeated uploads
// that share a name.
type StoredObject struct {
	Principal   string    `json:"principal"`
	Name        string    `json:"name"`
	SizeBytes   int64     `json:"size"`
	ContentType string    `json:"content_type"`
	UploadedAt  time.Time `json:"uploaded_at"`
	FileID      string    `json:"file_id"`
	Generation  string    `json:"generation"`
}

// Key returns the object store key for the object, namespaced by principal.
func (o *StoredObject) Key() string {
	return ObjectKey(o.Principal, o.Name)
}

// ObjectKey builds the store key for an object name inside a principal's
// namespace.
func ObjectKey(principal, name string) string {
	return principal + "/" + name
}

// NamespacePrefix returns the key prefix under which all of a principal's
// objects live.
func NamespacePrefix(principal string) string {
	return principal + "/"
}

// ObjectEntry is the list-endpoint representation of a stored object.
type ObjectEntry struct {
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	SizeInMB    float64   `json:"sizeInMB"`
	UploadedAt  time.Time `json:"uploadedAt"`
	ContentType string    `json:"contentType"`
	FileID      string    `json:"fileId"`
	Generation  string    `json:"generation"`
}

// NewObjectEntry converts a stored object into its list representation.
func NewObjectEntry(o *StoredObject) ObjectEntry {
	return ObjectEntry{
		Name:        o.Name,
		Size:        o.SizeBytes,
		SizeInMB:    BytesToMegabytes(o.SizeBytes),
		UploadedAt:  o.UploadedAt,
		ContentType: o.ContentType,
		FileID:      o.FileID,
		Generation:  o.Generation,
	}
}
