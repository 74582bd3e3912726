package domain

import "time"

// Render is the durable artifact group produced by exactly one job. It is
// created lazily on the first successfully ingested output and reused on
// ingestion retries, so a job never yields more than one render.
type Render struct {
	ID                string
	JobID             string
	OwnerID           string
	Mode              Mode
	RoomType          string
	Style             string
	CoverVariantIndex int
	CreatedAt         time.Time
}

// RenderVariant is one generated image within a render, ordered by Idx.
// (RenderID, Idx) is unique; replaying the same provider output is a no-op.
type RenderVariant struct {
	ID        string
	RenderID  string
	OwnerID   string
	Idx       int
	ImagePath string
	ThumbPath string
	CreatedAt time.Time
}
