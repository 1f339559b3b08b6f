package model

// GalleryRow is a stored gallery value record joined with its etag
type GalleryRow struct {
	Path     string
	RecordID int64
	ValueID  int64
	EntityID int64
	StoreID  int
	Label    string
	Position int
	Disabled bool
	S3Etag   *string
}

// GalleryValue holds the desired metadata of a gallery record
type GalleryValue struct {
	ValueID  int64
	EntityID int64
	StoreID  int
	Label    string
	Position int
	Disabled bool
}

// MediaObject is what the media store knows about the file behind a path
type MediaObject struct {
	Exists bool
	Etag   *string
}
