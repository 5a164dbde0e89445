package ftp

// FTP reply codes used by the engine (RFC 959 numbering).
const (
	// Positive preliminary
	StatusFileOK = 150

	// Positive completion
	StatusOK           = 200
	StatusSystemStatus = 211
	StatusFileStatus   = 213
	StatusHelp         = 214
	StatusSystemType   = 215
	StatusReady        = 220
	StatusClosing      = 221
	StatusTransferDone = 226
	StatusPassiveMode  = 227
	StatusLoggedIn     = 230
	StatusActionDone   = 250
	StatusPathCreated  = 257

	// Positive intermediate
	StatusNeedPassword  = 331
	StatusPendingAction = 350

	// Transient negative
	StatusNotAvailable    = 421
	StatusCannotOpenData  = 425
	StatusTransferAborted = 426

	// Permanent negative
	StatusSyntaxError    = 500
	StatusBadArguments   = 501
	StatusNotImplemented = 502
	StatusBadSequence    = 503
	StatusBadParameter   = 504
	StatusNotLoggedIn    = 530
	StatusActionNotTaken = 550
	StatusNameNotAllowed = 553
)
