// Package messages holds the user-facing message catalog. It is built once
// and injected into the components that need it, so no package reaches
// across the module for text.
package messages

import "dash/internal/store"

// ServiceMessages holds the per-service status and error texts.
type ServiceMessages struct {
	AccessPrivileges   string
	NotConfigured      string
	NotConnected       string
	AlreadyConnected   string
	Connected          string
	Removed            string
	Renewed            string
	UpdatesEnabled     string
	UpdatesDisabled    string
	MissingPermissions string
	Reset              string
}

// Catalog is the full message catalog.
type Catalog struct {
	GeneralError   string
	NewPosts       string
	NoPosts        string
	AccountDeleted string
	ServicesActive string

	Services map[store.Service]ServiceMessages
}

// Default returns the stock catalog.
func Default() *Catalog {
	return &Catalog{
		GeneralError:   "An error occurred. Please try again in a few minutes.",
		NewPosts:       "New posts! Reloading...",
		NoPosts:        "No new posts.",
		AccountDeleted: "Account deletion processed. Reloading...",
		ServicesActive: "Account deletion failed. Please remove all services beforehand.",
		Services: map[store.Service]ServiceMessages{
			store.Facebook: {
				AccessPrivileges:   "Facebook access privileges must be renewed. Reloading...",
				NotConfigured:      "Facebook is not currently configured.",
				NotConnected:       "You have not connected a Facebook account.",
				AlreadyConnected:   "You have already connected a Facebook account.",
				Connected:          "Facebook has been connected.",
				Removed:            "Facebook has been removed.",
				Renewed:            "Access privileges for Facebook have been renewed.",
				UpdatesEnabled:     "Facebook updates have been enabled. Reloading...",
				UpdatesDisabled:    "Facebook updates have been disabled. Reloading...",
				MissingPermissions: "Permissions are missing for Facebook. Please reconnect to grant access.",
				Reset:              "Successfully reset Facebook connection. Reloading...",
			},
			store.YouTube: {
				AccessPrivileges:   "YouTube access privileges must be renewed. Reloading...",
				NotConfigured:      "YouTube is not currently configured.",
				NotConnected:       "You have not connected a YouTube account.",
				AlreadyConnected:   "You have already connected a YouTube account.",
				Connected:          "YouTube has been connected.",
				Removed:            "YouTube has been removed.",
				Renewed:            "Access privileges for YouTube have been renewed.",
				UpdatesEnabled:     "YouTube updates have been enabled. Reloading...",
				UpdatesDisabled:    "YouTube updates have been disabled. Reloading...",
				MissingPermissions: "Permissions are missing for YouTube. Please reconnect to grant access.",
				Reset:              "Successfully reset YouTube connection. Reloading...",
			},
		},
	}
}

// Service returns the message set for a service, falling back to zero values
// for unknown services.
func (c *Catalog) Service(s store.Service) ServiceMessages {
	return c.Services[s]
}
