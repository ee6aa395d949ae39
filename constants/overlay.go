package constants

const (
	Unknown = "Unknown"

	LateralityLeft  = "L"
	LateralityRight = "R"

	ViewCC  = "CC"
	ViewMLO = "MLO"

	// CodeMeaning of the ViewCodeSequence item that maps to CC. Every other
	// non-empty meaning is treated as MLO.
	ViewMeaningCranioCaudal = "cranio-caudal"

	NameDelimiter  = "_"
	NameTokenCount = 4
	OverlaySuffix  = "overlaid"
	OverlayExt     = ".png"
	AnnotationExt  = ".json"
	DicomExt       = ".dcm"

	DefaultSubjectColumn = "Subject ID"
	DefaultSeriesColumn  = "Series UID"

	SourceDir     = "dir"
	SourceOrthanc = "orthanc"

	SinkFile  = "file"
	SinkMinIO = "minio"

	TieBreakFirstMatch       = "FIRST_MATCH"
	TieBreakErrorOnAmbiguous = "ERROR_ON_AMBIGUOUS"
	TieBreakAcquisitionTime  = "PREFER_BY_ACQUISITION_TIME"

	DefaultColor       = "#FFFF00"
	DefaultLineWidth   = 2.0
	DefaultPointRadius = 2.0
)

// Diagnostic kinds.
const (
	DiagMetadataMissing     = "METADATA_MISSING"
	DiagPayloadCorrupt      = "PRIVATE_TAG_PAYLOAD_CORRUPT"
	DiagNamingConvention    = "NAMING_CONVENTION_VIOLATION"
	DiagUnmatched           = "UNMATCHED_ANNOTATION"
	DiagAmbiguous           = "AMBIGUOUS_MATCH"
	DiagNoAnnotation        = "NO_ANNOTATION"
	DiagReadFailure         = "READ_FAILURE"
	DiagRenderFailure       = "RENDER_FAILURE"
	DiagWriteFailure        = "WRITE_FAILURE"
	DiagOutputCollision     = "OUTPUT_COLLISION"
	DiagCancelled           = "CANCELLED"
	DiagAnnotationLoadError = "ANNOTATION_LOAD_FAILURE"
)
