package yield

import "errors"

var (
	ErrNilState              = errors.New("yield engine: state not configured")
	ErrNilToken              = errors.New("yield engine: asset collaborator not configured")
	ErrInvalidConfig         = errors.New("yield engine: invalid configuration")
	ErrAlreadyInitialized    = errors.New("yield engine: already initialized")
	ErrNotInitialized        = errors.New("yield engine: not initialized")
	ErrTreasuryUnchanged     = errors.New("yield engine: treasury unchanged")
	ErrInvalidTreasury       = errors.New("yield engine: candidate is not a compliant treasury")
	ErrTreasuryAssetMismatch = errors.New("yield engine: treasury underlying asset mismatch")
	ErrTreasuryNotConfigured = errors.New("yield engine: treasury not configured")
	ErrLengthMismatch        = errors.New("yield engine: accounts and amounts length mismatch")
	ErrEmptyBatch            = errors.New("yield engine: empty batch")
	ErrZeroAddress           = errors.New("yield engine: zero address")
	ErrZeroAmount            = errors.New("yield engine: zero amount")
	ErrInsufficientSupply    = errors.New("yield engine: amount exceeds total supply")
	ErrInsufficientAdvanced  = errors.New("yield engine: amount exceeds outstanding advanced balance")
	ErrAdvancedExceedsSupply = errors.New("yield engine: total advanced exceeds total supply")
	ErrInvalidImplementation = errors.New("yield engine: upgrade candidate failed compliance probe")
)
