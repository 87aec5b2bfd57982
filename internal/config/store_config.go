package config

type StoreConfig interface {
	GetStoreBackend() string
	GetStorePath() string
	GetStorePassphrase() string
}

type Store struct {
	file *FileSettings
}

var _ StoreConfig = Store{}

const (
	StoreBackendFile   = "file"
	StoreBackendBadger = "badger"
)

func (s Store) GetStoreBackend() string {
	return GetEnv("STORE_BACKEND", orDefault(s.settings().Store.Backend, StoreBackendFile))
}

// GetStorePath is the directory holding the credential record.
func (s Store) GetStorePath() string {
	return GetEnv("STORE_PATH", orDefault(s.settings().Store.Path, "./data"))
}

// GetStorePassphrase enables at-rest encryption of the file store when set.
func (s Store) GetStorePassphrase() string {
	return GetEnv("STORE_PASSPHRASE", s.settings().Store.Passphrase)
}

func (s Store) settings() *FileSettings {
	if s.file == nil {
		return &FileSettings{}
	}
	return s.file
}
