package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDownloadIDUnmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want DownloadID
	}{
		{`123456`, "123456"},
		{`"abc-1"`, "abc-1"},
		{`null`, ""},
	}
	for _, tt := range tests {
		var got DownloadID
		if err := json.Unmarshal([]byte(tt.in), &got); err != nil {
			t.Fatalf("Unmarshal(%s) failed: %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("Unmarshal(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}

	var bad DownloadID
	if err := json.Unmarshal([]byte(`{}`), &bad); err == nil {
		t.Error("expected error for object downloadId")
	}
}

func TestDecodeDownloadRequestResponse(t *testing.T) {
	payload := `{
		"availableDownloads": [{"downloadId": 11, "eulaCode": null, "url": "https://dds.example/11"}],
		"preparingDownloads": [{"downloadId": 12, "eulaCode": null, "url": "https://dds.example/12"}],
		"failed": [],
		"numInvalidScenes": 0
	}`
	var resp DownloadRequestResponse
	if err := json.Unmarshal([]byte(payload), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(resp.AvailableDownloads) != 1 || resp.AvailableDownloads[0].DownloadID != "11" {
		t.Errorf("available = %+v", resp.AvailableDownloads)
	}
	if len(resp.PreparingDownloads) != 1 || resp.PreparingDownloads[0].DownloadID != "12" {
		t.Errorf("preparing = %+v", resp.PreparingDownloads)
	}
}

func TestProductDescriptorUsesIDForProductID(t *testing.T) {
	payload := `[{"id": "5e81f14f92acf9ef", "entityId": "LC08_SCENE", "bulkAvailable": true,
		"secondaryDownloads": [{"id": "5e81f14ff4f9941c", "entityId": "L2ST_LC08_SCENE_ST_B10_TIF", "bulkAvailable": true}]}]`
	var products []ProductDescriptor
	if err := json.Unmarshal([]byte(payload), &products); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if products[0].ProductID != "5e81f14f92acf9ef" {
		t.Errorf("ProductID = %q", products[0].ProductID)
	}
	if sd := products[0].SecondaryDownloads; len(sd) != 1 || !strings.HasSuffix(sd[0].EntityID, "ST_B10_TIF") {
		t.Errorf("secondary = %+v", sd)
	}
}

func TestDownloadRequestItemSpec(t *testing.T) {
	item := DownloadRequestItem{EntityID: "E", ProductID: "P", SceneEntityID: "S"}
	data, err := json.Marshal(item.Spec())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"entityId":"E","productId":"P"}` {
		t.Errorf("spec json = %s", data)
	}
}
