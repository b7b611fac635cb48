package cmd

import (
	"bytes"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"

	"github.com/contentledger/blockchain/foundation/blockchain/database"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
)

var (
	url  string
	kind string
	data string
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Sign and submit a transaction",
	Run: func(cmd *cobra.Command, args []string) {
		privateKey, err := crypto.LoadECDSA(getPrivateKeyPath())
		if err != nil {
			log.Fatal(err)
		}

		submitWithDetails(privateKey)
	},
}

func init() {
	rootCmd.AddCommand(submitCmd)
	submitCmd.Flags().StringVarP(&url, "url", "u", "http://localhost:8080", "Url of the node.")
	submitCmd.Flags().StringVarP(&kind, "kind", "k", "upload", "Application label of the transaction.")
	submitCmd.Flags().StringVarP(&data, "data", "d", "", "Payload of the transaction.")
}

func submitWithDetails(privateKey *ecdsa.PrivateKey) {
	tx, err := database.NewTx(database.PublicKeyToAccountID(privateKey.PublicKey), kind, []byte(data))
	if err != nil {
		log.Fatal(err)
	}

	signedTx, err := tx.Sign(privateKey)
	if err != nil {
		log.Fatal(err)
	}

	body, err := json.Marshal(signedTx)
	if err != nil {
		log.Fatal(err)
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", url), "application/json", bytes.NewBuffer(body))
	if err != nil {
		log.Fatal(err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(resp.Status)
	fmt.Println(string(out))
}
