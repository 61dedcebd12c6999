package config

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io/fs"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// Initialize creates a configuration directory at path, existing files are
// left untouched.
func Initialize(path string, logger *log.Logger) (*Configuration, error) {
	logger.Printf("Initializing configuration in %q\n", path)
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, err
	}
	configFs := afero.NewBasePathFs(afero.NewOsFs(), path)

	if err := initializeFs(configFs, logger); err != nil {
		return nil, err
	}

	return Load(path)
}

func initializeFs(configFs afero.Fs, logger *log.Logger) error {
	logger.Printf("- Creating %s\n", ConfigurationName)
	if err := writeIfMissing(configFs, ConfigurationName, defaultConfigData, 0600, logger); err != nil {
		return err
	}

	logger.Printf("- Creating %s\n", AuthorizedKeysName)
	if err := writeIfMissing(configFs, AuthorizedKeysName, nil, 0600, logger); err != nil {
		return err
	}

	logger.Printf("- Creating %s directory\n", LogsDirName)
	if err := configFs.MkdirAll(LogsDirName, 0700); err != nil {
		return err
	}

	logger.Printf("- Generating SSH host key\n")
	if exists, err := afero.Exists(configFs, HostKeyName); err != nil {
		return err
	} else if exists {
		logger.Printf("  %s already exists, skipping\n", HostKeyName)
		return nil
	}

	keyPem, err := generateHostKey()
	if err != nil {
		return err
	}
	return afero.WriteFile(configFs, HostKeyName, keyPem, 0600)
}

func writeIfMissing(configFs afero.Fs, name string, data []byte, perm fs.FileMode, logger *log.Logger) error {
	fd, err := configFs.OpenFile(filepath.Clean(name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	switch {
	case errors.Is(err, fs.ErrExist):
		logger.Printf("  %s already exists, skipping\n", name)
		return nil
	case err != nil:
		return err
	}

	if _, err := fd.Write(data); err != nil {
		fd.Close()
		return err
	}
	return fd.Close()
}

// generateHostKey creates a PEM encoded PKCS #8 ed25519 key.
func generateHostKey() ([]byte, error) {
	_, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}

	der, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return nil, err
	}

	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}
