package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Envelope is the wrapper around every M2M JSON response.
type Envelope struct {
	RequestID    int64           `json:"requestId"`
	Version      string          `json:"version"`
	SessionID    int64           `json:"sessionId,omitempty"`
	Data         json.RawMessage `json:"data"`
	ErrorCode    *string         `json:"errorCode"`
	ErrorMessage *string         `json:"errorMessage"`
}

// LoginRequest is the payload for the login endpoint.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginTokenRequest is the payload for the login-token endpoint.
type LoginTokenRequest struct {
	Username string `json:"username"`
	Token    string `json:"token"`
}

// SceneListAddRequest registers entity ids on a working list.
type SceneListAddRequest struct {
	ListID      string   `json:"listId"`
	DatasetName string   `json:"datasetName"`
	EntityIDs   []string `json:"entityIds"`
}

// SceneListRemoveRequest deletes a working list.
type SceneListRemoveRequest struct {
	ListID string `json:"listId"`
}

// DownloadOptionsRequest asks for the product descriptors of a working list.
type DownloadOptionsRequest struct {
	ListID      string `json:"listId"`
	DatasetName string `json:"datasetName"`
}

// DownloadSpec is one entry of a download-request call.
type DownloadSpec struct {
	EntityID  string `json:"entityId"`
	ProductID string `json:"productId"`
}

// DownloadRequest is the payload for download-request.
type DownloadRequest struct {
	Downloads       []DownloadSpec `json:"downloads"`
	Label           string         `json:"label"`
	ReturnAvailable bool           `json:"returnAvailable"`
}

// DownloadRetrieveRequest is the payload for download-retrieve.
type DownloadRetrieveRequest struct {
	Label string `json:"label"`
}

// DownloadID identifies a download on the fulfillment side. The service
// emits it as a JSON number; strings are accepted as well.
type DownloadID string

// UnmarshalJSON accepts both numeric and string ids.
func (d *DownloadID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*d = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = DownloadID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid downloadId %s: %w", b, err)
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return fmt.Errorf("invalid downloadId %s: %w", b, err)
	}
	*d = DownloadID(n.String())
	return nil
}

// DownloadEntry is one item in download-request and download-retrieve results.
// Which fields are filled depends on the section it appears in.
type DownloadEntry struct {
	DownloadID DownloadID `json:"downloadId"`
	EntityID   string     `json:"entityId,omitempty"`
	DisplayID  string     `json:"displayId,omitempty"`
	ProductID  string     `json:"productId,omitempty"`
	StatusCode string     `json:"statusCode,omitempty"`
	StatusText string     `json:"statusText,omitempty"`
	URL        string     `json:"url,omitempty"`
	EulaCode   *string    `json:"eulaCode,omitempty"`
}

// DownloadRequestResponse is the data of a download-request call.
type DownloadRequestResponse struct {
	AvailableDownloads []DownloadEntry `json:"availableDownloads"`
	PreparingDownloads []DownloadEntry `json:"preparingDownloads"`
	FailedDownloads    []DownloadEntry `json:"failed"`
	DuplicateProducts  json.RawMessage `json:"duplicateProducts,omitempty"`
	NumInvalidScenes   int             `json:"numInvalidScenes"`
}

// DownloadRetrieveResponse is the data of a download-retrieve call.
type DownloadRetrieveResponse struct {
	Available []DownloadEntry `json:"available"`
	Requested []DownloadEntry `json:"requested"`
	QueueSize int             `json:"queueSize"`
	EulaCodes []string        `json:"eulaCodes,omitempty"`
}
