// Package models holds the M2M wire types and the download domain types.
package models

// ProductDescriptor is one download option returned by download-options.
// SecondaryDownloads holds per-band sub-products with the same shape.
type ProductDescriptor struct {
	ProductID          string              `json:"id"`
	EntityID           string              `json:"entityId"`
	DisplayID          string              `json:"displayId"`
	ProductName        string              `json:"productName"`
	ProductCode        string              `json:"productCode,omitempty"`
	Filesize           int64               `json:"filesize"`
	Available          bool                `json:"available"`
	BulkAvailable      bool                `json:"bulkAvailable"`
	DownloadSystem     string              `json:"downloadSystem,omitempty"`
	SecondaryDownloads []ProductDescriptor `json:"secondaryDownloads"`
}

// DownloadRequestItem is the unit submitted for fulfillment. SceneEntityID
// links a band or bundle item back to the scene it was selected from.
type DownloadRequestItem struct {
	EntityID      string `json:"entityId"`
	ProductID     string `json:"productId"`
	SceneEntityID string `json:"sceneEntityId"`
}

// Spec returns the wire form of the item.
func (i DownloadRequestItem) Spec() DownloadSpec {
	return DownloadSpec{EntityID: i.EntityID, ProductID: i.ProductID}
}

// WorkingList is a server-side scratch list scoping a download-options query.
type WorkingList struct {
	ID      string
	Dataset string
	Members []string
}

// PreparationTicket is a download still being packaged by the service.
type PreparationTicket struct {
	DownloadID DownloadID
}

// DownloadResult is one fetched product correlated back to its scene.
type DownloadResult struct {
	EntityID      string `json:"entityId"`
	SceneEntityID string `json:"sceneEntityId"`
	Path          string `json:"path,omitempty"`
}
