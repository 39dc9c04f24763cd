package wallet

import (
	"encoding/hex"
	"errors"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// ParsePrivateKey 同时支持 WIF 或 16 进制的32字节私钥字符串
func ParsePrivateKey(keyStr string) (*btcec.PrivateKey, error) {
	// 1) 尝试当作WIF解析
	if wif, err := btcutil.DecodeWIF(keyStr); err == nil {
		return wif.PrivKey, nil
	}

	// 2) 如果不是WIF，则尝试按Hex进行解析
	raw, err := hex.DecodeString(keyStr)
	if err != nil {
		return nil, errors.New("invalid key (neither valid WIF nor valid hex): " + err.Error())
	}
	if len(raw) != 32 {
		return nil, errors.New("invalid private key length in hex (must be 32 bytes)")
	}

	// 3) 使用 32 字节原生私钥
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return priv, nil
}

// ParsePublicKey 解析 hex 编码的公钥（压缩或非压缩）
func ParsePublicKey(pubHex string) (*secp256k1.PublicKey, error) {
	raw, err := hex.DecodeString(pubHex)
	if err != nil {
		return nil, err
	}
	return secp256k1.ParsePubKey(raw)
}

// DeriveBech32Address 从公钥生成 bc1q… P2WPKH 地址（只用于展示）
func DeriveBech32Address(pub *btcec.PublicKey) (string, error) {
	// Hash160 == SHA-256 + RIPEMD-160
	pubKeyHash := btcutil.Hash160(pub.SerializeCompressed())
	addr, err := btcutil.NewAddressWitnessPubKeyHash(pubKeyHash, &chaincfg.MainNetParams)
	if err != nil {
		return "", err
	}
	return addr.EncodeAddress(), nil
}
