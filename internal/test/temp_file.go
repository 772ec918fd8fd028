package test

import "os"

// CreateTempFile writes content into a new file of the temporary directory
// and returns its path. The file is removed when writing fails.
func CreateTempFile(byts []byte) (string, error) {
	f, err := os.CreateTemp("", "mtxplayer-")
	if err != nil {
		return "", err
	}

	path := f.Name()

	_, err = f.Write(byts)
	if cerr := f.Close(); err == nil {
		err = cerr
	}

	if err != nil {
		os.Remove(path)
		return "", err
	}

	return path, nil
}
