package api

import (
	"context"
	"fmt"

	"github.com/scenefetch/scenefetch/internal/models"
)

// M2M endpoint names, relative to the service URL.
const (
	EndpointLogin            = "login"
	EndpointLoginToken       = "login-token"
	EndpointLogout           = "logout"
	EndpointSceneListAdd     = "scene-list-add"
	EndpointSceneListRemove  = "scene-list-remove"
	EndpointDownloadOptions  = "download-options"
	EndpointDownloadRequest  = "download-request"
	EndpointDownloadRetrieve = "download-retrieve"
)

// Login authenticates with username and password and stores the session token.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var token string
	if err := c.Send(ctx, EndpointLogin, models.LoginRequest{Username: username, Password: password}, &token); err != nil {
		return "", err
	}
	return c.acceptToken(EndpointLogin, token)
}

// LoginToken authenticates with an M2M application token and stores the session token.
func (c *Client) LoginToken(ctx context.Context, username, appToken string) (string, error) {
	var token string
	if err := c.Send(ctx, EndpointLoginToken, models.LoginTokenRequest{Username: username, Token: appToken}, &token); err != nil {
		return "", err
	}
	return c.acceptToken(EndpointLoginToken, token)
}

func (c *Client) acceptToken(endpoint, token string) (string, error) {
	if token == "" {
		return "", &TransportError{Kind: KindAuthError, Endpoint: endpoint, Message: "service returned an empty session token"}
	}
	c.SetToken(token)
	c.logger.Info().Str("endpoint", endpoint).Msg("M2M session established")
	return token, nil
}

// Logout invalidates the session token. The local token is cleared even when
// the service call fails.
func (c *Client) Logout(ctx context.Context) error {
	if !c.HasSession() {
		return nil
	}
	err := c.Send(ctx, EndpointLogout, nil, nil)
	c.SetToken("")
	if err != nil {
		return err
	}
	c.logger.Info().Msg("M2M session closed")
	return nil
}

// SceneListAdd registers entity ids on a working list and returns the number added.
func (c *Client) SceneListAdd(ctx context.Context, listID, dataset string, entityIDs []string) (int, error) {
	if !c.HasSession() {
		return 0, ErrNoSession
	}
	var count *int
	req := models.SceneListAddRequest{ListID: listID, DatasetName: dataset, EntityIDs: entityIDs}
	if err := c.Send(ctx, EndpointSceneListAdd, req, &count); err != nil {
		return 0, err
	}
	if count == nil {
		return 0, nil
	}
	return *count, nil
}

// SceneListRemove deletes a working list.
func (c *Client) SceneListRemove(ctx context.Context, listID string) error {
	if !c.HasSession() {
		return ErrNoSession
	}
	return c.Send(ctx, EndpointSceneListRemove, models.SceneListRemoveRequest{ListID: listID}, nil)
}

// DownloadOptions returns the product descriptors for the scenes on a working list.
func (c *Client) DownloadOptions(ctx context.Context, listID, dataset string) ([]models.ProductDescriptor, error) {
	if !c.HasSession() {
		return nil, ErrNoSession
	}
	var products []models.ProductDescriptor
	req := models.DownloadOptionsRequest{ListID: listID, DatasetName: dataset}
	if err := c.Send(ctx, EndpointDownloadOptions, req, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// DownloadRequest submits items for fulfillment under label, asking the
// service to return already-available downloads immediately.
func (c *Client) DownloadRequest(ctx context.Context, downloads []models.DownloadSpec, label string) (*models.DownloadRequestResponse, error) {
	if !c.HasSession() {
		return nil, ErrNoSession
	}
	if label == "" {
		return nil, fmt.Errorf("download-request: label is required")
	}
	var resp models.DownloadRequestResponse
	req := models.DownloadRequest{Downloads: downloads, Label: label, ReturnAvailable: true}
	if err := c.Send(ctx, EndpointDownloadRequest, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DownloadRetrieve returns the current state of every download under label.
func (c *Client) DownloadRetrieve(ctx context.Context, label string) (*models.DownloadRetrieveResponse, error) {
	if !c.HasSession() {
		return nil, ErrNoSession
	}
	var resp models.DownloadRetrieveResponse
	if err := c.Send(ctx, EndpointDownloadRetrieve, models.DownloadRetrieveRequest{Label: label}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
