package wallet

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"minichain/config"
	"minichain/logs"

	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/scrypt"
)

// ErrWrongPassphrase 口令错误或文件被篡改
var ErrWrongPassphrase = errors.New("wrong passphrase or corrupted key file")

const keystoreVersion = 1

// keyFile 落盘格式
type keyFile struct {
	Version    int    `json:"version"`
	PublicKey  string `json:"public_key"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
	N          int    `json:"n"`
	R          int    `json:"r"`
	P          int    `json:"p"`
}

// SaveKeys 用 scrypt 派生密钥、secretbox 加密私钥后写入文件
func (w *Wallet) SaveKeys(path, passphrase string, cfg config.WalletConfig) error {
	if w.privateKey == nil {
		return ErrNoKey
	}
	var salt [32]byte
	if _, err := rand.Read(salt[:]); err != nil {
		return err
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return err
	}
	key, err := deriveKey(passphrase, salt[:], cfg.ScryptN, cfg.ScryptR, cfg.ScryptP)
	if err != nil {
		return err
	}
	box := secretbox.Seal(nil, w.privateKey.Serialize(), &nonce, key)

	kf := keyFile{
		Version:    keystoreVersion,
		PublicKey:  w.PublicKey(),
		Salt:       hex.EncodeToString(salt[:]),
		Nonce:      hex.EncodeToString(nonce[:]),
		Ciphertext: hex.EncodeToString(box),
		N:          cfg.ScryptN,
		R:          cfg.ScryptR,
		P:          cfg.ScryptP,
	}
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	logs.Info("[Wallet] keys saved to %s", path)
	return nil
}

// LoadWallet 读取 SaveKeys 写出的文件
func LoadWallet(path, passphrase string) (*Wallet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse key file: %w", err)
	}
	if kf.Version != keystoreVersion {
		return nil, fmt.Errorf("unsupported key file version %d", kf.Version)
	}
	salt, err := hex.DecodeString(kf.Salt)
	if err != nil {
		return nil, fmt.Errorf("bad salt: %w", err)
	}
	nonceRaw, err := hex.DecodeString(kf.Nonce)
	if err != nil || len(nonceRaw) != 24 {
		return nil, errors.New("bad nonce")
	}
	box, err := hex.DecodeString(kf.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("bad ciphertext: %w", err)
	}
	key, err := deriveKey(passphrase, salt, kf.N, kf.R, kf.P)
	if err != nil {
		return nil, err
	}
	var nonce [24]byte
	copy(nonce[:], nonceRaw)
	raw, ok := secretbox.Open(nil, box, &nonce, key)
	if !ok {
		return nil, ErrWrongPassphrase
	}
	w, err := FromPrivateKey(hex.EncodeToString(raw))
	if err != nil {
		return nil, err
	}
	if kf.PublicKey != "" && kf.PublicKey != w.PublicKey() {
		return nil, ErrWrongPassphrase
	}
	return w, nil
}

func deriveKey(passphrase string, salt []byte, n, r, p int) (*[32]byte, error) {
	k, err := scrypt.Key([]byte(passphrase), salt, n, r, p, 32)
	if err != nil {
		return nil, fmt.Errorf("scrypt: %w", err)
	}
	var key [32]byte
	copy(key[:], k)
	return &key, nil
}
