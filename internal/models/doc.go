// Package models defines the data model for the album rating service.
//
// Persistent entities (User, Rating, RatingSession, PersistedAlbum)
// implement the [Model] interface and are stored by the repositories
// package. Catalog DTOs (Album, Track, Artist, SavedAlbum) are plain
// value types produced by the services package from Spotify responses.
package models
