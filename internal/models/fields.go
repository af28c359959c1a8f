package models

// Shot index field names.
const (
	FieldJobID            = "jobId"
	FieldVideoName        = "video_name"
	FieldShotID           = "shot_id"
	FieldShotStart        = "shot_startTime"
	FieldShotEnd          = "shot_endTime"
	FieldShotDescription  = "shot_description"
	FieldPublicFigures    = "shot_publicFigures"
	FieldPrivateFigures   = "shot_privateFigures"
	FieldShotTranscript   = "shot_transcript"
	FieldShotFrames       = "shot_frames"
	FieldDescVector       = "shot_desc_vector"
	FieldTranscriptVector = "shot_transcript_vector"
	FieldImageVector      = "shot_image_vector"
)

// Audio (sentence) index field names.
const (
	FieldTranscriptID    = "transcript_id"
	FieldTranscriptStart = "transcript_startTime"
	FieldTranscriptEnd   = "transcript_endTime"
	FieldTranscript      = "transcript"
	FieldTranscriptVec   = "transcript_vector"
)

// ResultFields are the shot fields returned with every hit.
var ResultFields = []string{
	FieldJobID,
	FieldVideoName,
	FieldShotID,
	FieldShotStart,
	FieldShotEnd,
	FieldShotDescription,
	FieldPublicFigures,
	FieldPrivateFigures,
	FieldShotTranscript,
}

// PhraseFields are the shot fields a quoted phrase must occur in.
var PhraseFields = []string{
	FieldPublicFigures,
	FieldPrivateFigures,
	FieldShotDescription,
	FieldShotTranscript,
}
