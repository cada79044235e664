package tracker

import (
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Client fetches the two bus-tracker XML documents.
type Client struct {
	departuresURL string
	vehiclesURL   string
	client        *http.Client
	logger        *slog.Logger
}

// NewClient creates a bus-tracker client.
func NewClient(departuresURL, vehiclesURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		departuresURL: departuresURL,
		vehiclesURL:   vehiclesURL,
		client:        &http.Client{Timeout: timeout},
		logger:        logger,
	}
}

// Departures fetches and parses the stopdepartures document.
func (c *Client) Departures(ctx context.Context) (*DeparturesDoc, error) {
	var doc DeparturesDoc
	if err := c.fetchXML(ctx, c.departuresURL, &doc); err != nil {
		return nil, fmt.Errorf("fetch departures: %w", err)
	}
	c.logger.Debug("fetched departures document", "stops", len(doc.Stops))
	return &doc, nil
}

// Vehicles fetches and parses the vehiclelocation document.
func (c *Client) Vehicles(ctx context.Context) (*VehiclesDoc, error) {
	var doc VehiclesDoc
	if err := c.fetchXML(ctx, c.vehiclesURL, &doc); err != nil {
		return nil, fmt.Errorf("fetch vehicles: %w", err)
	}
	c.logger.Debug("fetched vehicles document", "vehicles", len(doc.Vehicles))
	return &doc, nil
}

func (c *Client) fetchXML(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, url)
	}

	if err := xml.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode XML: %w", err)
	}
	return nil
}
