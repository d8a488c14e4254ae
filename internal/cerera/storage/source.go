package storage

import (
	"bufio"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/cerera/internal/cerera/types"
)

// LoadFromFile loads encrypted data from a JSON file into the vault.
func LoadFromFile(filename string, key []byte) error {
	var v = GetVault()

	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	decryptedData, err := decrypt(data, key)
	if err != nil {
		return err
	}

	err = json.Unmarshal(decryptedData, &v.accounts)
	if err != nil {
		return err
	}

	return nil
}

// SaveToFile encrypts and saves data from the vault to a JSON file.
func SaveToFile(filename string, key []byte, data []byte) error {

	var vault = GetVault()
	for _, v := range vault.accounts.accounts {
		var buf, _ = json.Marshal(v)

		encryptedData, err := encrypt(buf, key)
		if err != nil {
			return err
		}

		err = os.WriteFile(filename, encryptedData, 0644)
		if err != nil {
			return err
		}
	}
	return nil
}

func encrypt(data []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return ciphertext, nil
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < aes.BlockSize {
		return nil, errors.New("ciphertext too short")
	}
	iv := ciphertext[:aes.BlockSize]
	ciphertext = ciphertext[aes.BlockSize:]

	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(ciphertext, ciphertext)

	return ciphertext, nil
}

func InitSecureVault(sa *types.StateAccount, path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to create the vault file: %w", err)
	}
	defer f.Close()
	return writeAccountRecord(f, sa.Bytes())
}

// writeAccountRecord frames one serialized account as a length-prefixed
// record, so binary account encodings survive concatenation in one file.
func writeAccountRecord(f *os.File, data []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := f.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("failed to write to the vault file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write to the vault file: %w", err)
	}
	return nil
}

// load from file
func SyncVault(path string) error {
	file, err := os.OpenFile(path, os.O_RDONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open the vault file: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(reader, lenBuf[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("failed to read record length: %w", err)
		}
		recordLen := binary.BigEndian.Uint32(lenBuf[:])
		data := make([]byte, recordLen)
		if _, err := io.ReadFull(reader, data); err != nil {
			return fmt.Errorf("failed to read account record: %w", err)
		}
		// Deserialization of a corrupted record must not take the whole
		// sync down with it.
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Skipping corrupted account record: %v", r)
				}
			}()
			if account := types.BytesToStateAccount(data); account != nil {
				GetVault().accounts.Append(account.Address, account)
			}
		}()
	}
}

func SaveToVault(account []byte, path string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open the vault file for writing: %w", err)
	}
	defer f.Close()
	return writeAccountRecord(f, account)
}
