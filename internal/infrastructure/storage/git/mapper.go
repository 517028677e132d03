package git

import (
	"fmt"
	"mime"
	"path"
	"regexp"
	"strings"
	"time"

	"archivist/internal/domain/record"
)

const (
	PrefixStartTracking = "Start tracking"
	PrefixRefilter      = "Refilter"
	PrefixUpdate        = "Update"

	// DefaultPrefixMessageToSnapshotID introduces each source snapshot ID in a version commit message.
	DefaultPrefixMessageToSnapshotID = "This version was recorded after filtering snapshot "

	// FetchDateTrailer carries the full precision fetch date; commit dates keep whole seconds only.
	FetchDateTrailer = "Fetch-Date: "

	defaultExtension = "bin"
	defaultMimeType  = "application/octet-stream"
)

// recordMessagePattern matches the first line of every commit created by the repository.
// Bootstrap commits like "Update README.md" match too; ToDomain rejects them by path.
const recordMessagePattern = "^(" + PrefixStartTracking + "|" + PrefixRefilter + "|" + PrefixUpdate + ") "

var recordMessage = regexp.MustCompile(recordMessagePattern)

var extensionsByMimeType = map[string]string{
	"text/markdown":   "md",
	"text/html":       "html",
	"application/pdf": "pdf",
	"text/plain":      "txt",
}

var mimeTypesByExtension = func() map[string]string {
	m := make(map[string]string, len(extensionsByMimeType))
	for mt, ext := range extensionsByMimeType {
		m[ext] = mt
	}
	return m
}()

// isRecordCommit reports whether message was written by the repository.
func isRecordCommit(message string) bool {
	return recordMessage.MatchString(message)
}

// ExtensionFor returns the file extension used to store content of mimeType.
func ExtensionFor(mimeType string) string {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		mediaType = mimeType
	}
	if ext, ok := extensionsByMimeType[mediaType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return defaultExtension
}

// MimeTypeFor is the inverse of ExtensionFor.
func MimeTypeFor(ext string) string {
	if mt, ok := mimeTypesByExtension[ext]; ok {
		return mt
	}
	if mt := mime.TypeByExtension("." + ext); mt != "" {
		if mediaType, _, err := mime.ParseMediaType(mt); err == nil {
			return mediaType
		}
		return mt
	}
	return defaultMimeType
}

// FilePath returns the path of a partition's file relative to the repository root.
func FilePath(serviceID, documentType, ext string) string {
	return path.Join(serviceID, documentType+"."+ext)
}

// InPartition reports whether file stores records of (serviceID, documentType), whatever its extension.
// "A/ToS.v2.html" belongs to (A, "ToS.v2"), not to (A, "ToS").
func InPartition(file, serviceID, documentType string) bool {
	if path.Ext(file) == "" {
		return false
	}
	return strings.TrimSuffix(file, path.Ext(file)) == path.Join(serviceID, documentType)
}

// Mapper converts records to commits and back.
type Mapper struct {
	prefixMessageToSnapshotID string
}

func NewMapper(prefixMessageToSnapshotID string) *Mapper {
	if prefixMessageToSnapshotID == "" {
		prefixMessageToSnapshotID = DefaultPrefixMessageToSnapshotID
	}
	return &Mapper{prefixMessageToSnapshotID: prefixMessageToSnapshotID}
}

// ToPersistence returns what Save writes for rec: commit message, file content and file extension.
func (m *Mapper) ToPersistence(rec *record.Record) (message string, content []byte, ext string) {
	return m.Message(rec), rec.Content, ExtensionFor(rec.MimeType)
}

// Message builds the commit message of rec. IsFirstRecord must already be set.
func (m *Mapper) Message(rec *record.Record) string {
	prefix := PrefixUpdate
	switch {
	case rec.IsFirstRecord:
		prefix = PrefixStartTracking
	case rec.IsRefilter:
		prefix = PrefixRefilter
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s", prefix, rec.ServiceID, rec.DocumentType)
	if len(rec.SnapshotIDs) > 0 {
		b.WriteString("\n")
		for _, id := range rec.SnapshotIDs {
			b.WriteString("\n")
			b.WriteString(m.prefixMessageToSnapshotID)
			b.WriteString(id)
		}
	}
	if !rec.FetchDate.IsZero() {
		b.WriteString("\n\n")
		b.WriteString(FetchDateTrailer)
		b.WriteString(rec.FetchDate.UTC().Format(time.RFC3339Nano))
	}
	return b.String()
}

// ToDomain rebuilds the record stored by commit c. Content is left unloaded.
func (m *Mapper) ToDomain(c Commit) (*record.Record, error) {
	if !isRecordCommit(c.Message) {
		return nil, fmt.Errorf("commit %s was not created by the repository", c.Hash)
	}
	if len(c.Files) == 0 {
		return nil, fmt.Errorf("commit %s touches no file", c.Hash)
	}

	file := c.Files[0]
	serviceID, name := path.Split(file)
	serviceID = strings.TrimSuffix(serviceID, "/")
	ext := strings.TrimPrefix(path.Ext(name), ".")
	documentType := strings.TrimSuffix(name, path.Ext(name))
	if serviceID == "" || documentType == "" || ext == "" {
		return nil, fmt.Errorf("commit %s touches %q, not a record file", c.Hash, file)
	}

	rec := &record.Record{
		ID:            c.Hash,
		ServiceID:     serviceID,
		DocumentType:  documentType,
		MimeType:      MimeTypeFor(ext),
		FetchDate:     c.Date.UTC(),
		IsFirstRecord: strings.HasPrefix(c.Message, PrefixStartTracking+" "),
		IsRefilter:    strings.HasPrefix(c.Message, PrefixRefilter+" "),
	}

	for _, line := range strings.Split(c.Message, "\n") {
		line = strings.TrimSpace(line)
		if value, ok := strings.CutPrefix(line, FetchDateTrailer); ok {
			if date, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(value)); err == nil {
				rec.FetchDate = date.UTC()
			}
			continue
		}
		if id, ok := strings.CutPrefix(line, strings.TrimSpace(m.prefixMessageToSnapshotID)); ok {
			if id = strings.TrimSpace(id); id != "" {
				rec.SnapshotIDs = append(rec.SnapshotIDs, id)
			}
		}
	}

	return rec, nil
}
