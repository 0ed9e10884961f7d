// Package domain contains entity types without logic, just meta-data.
package domain

// RoomID is the free-form key a client joins under. Two participants
// sharing a RoomID form one call.
type RoomID string

// ParticipantID identifies one endpoint of a call. It is assigned by the
// relay when a signaling channel opens and dies with that channel.
type ParticipantID string
