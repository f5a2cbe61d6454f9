package errors

import "net/http"

var (
	ErrJourneyConflict = New(
		"JOURNEY_CONFLICT",
		"Passenger already has an active journey",
		http.StatusConflict,
	)

	ErrJourneyNotFound = New(
		"JOURNEY_NOT_FOUND",
		"Journey not found",
		http.StatusNotFound,
	)

	ErrNoActiveJourney = New(
		"NO_ACTIVE_JOURNEY",
		"No active journey",
		http.StatusConflict,
	)

	ErrInvalidTransition = New(
		"INVALID_TRANSITION",
		"Journey status transition is not allowed",
		http.StatusConflict,
	)

	ErrInvalidPositionReport = New(
		"INVALID_POSITION_REPORT",
		"Invalid position report",
		http.StatusBadRequest,
	)

	ErrInvalidCoordinates = New(
		"INVALID_COORDINATES",
		"Invalid coordinates provided",
		http.StatusBadRequest,
	)

	ErrStorageWriteFailed = New(
		"STORAGE_WRITE_FAILED",
		"Local storage write failed",
		http.StatusInternalServerError,
	)

	ErrStorageCorrupted = New(
		"STORAGE_CORRUPTED",
		"Local storage is corrupted",
		http.StatusInternalServerError,
	)

	ErrBackendUnavailable = New(
		"BACKEND_UNAVAILABLE",
		"Backend is unavailable",
		http.StatusServiceUnavailable,
	)

	ErrSyncInProgress = New(
		"SYNC_IN_PROGRESS",
		"Sync is already running",
		http.StatusConflict,
	)

	ErrReportQueueFull = New(
		"REPORT_QUEUE_FULL",
		"Position report queue is full",
		http.StatusServiceUnavailable,
	)

	ErrQueueItemNotFound = New(
		"QUEUE_ITEM_NOT_FOUND",
		"Queue item not found",
		http.StatusNotFound,
	)

	ErrDatabaseError = New(
		"DATABASE_ERROR",
		"Database operation failed",
		http.StatusInternalServerError,
	)

	ErrCacheError = New(
		"CACHE_ERROR",
		"Cache operation failed",
		http.StatusInternalServerError,
	)

	ErrInvalidRequest = New(
		"INVALID_REQUEST",
		"Invalid request parameters",
		http.StatusBadRequest,
	)

	ErrInternalServer = New(
		"INTERNAL_SERVER_ERROR",
		"Internal server error",
		http.StatusInternalServerError,
	)
)
