// Command demo-cli runs a complete two-party scenario against a relay.
//
// It registers two fresh identities, performs the full key exchange through
// the relay, verifies key confirmation on both sides, then sends an encrypted
// message from one party to the other and decrypts it on arrival.
//
// # Usage
//
//	go run ./cmd/demo-cli --relay=http://localhost:8080
//	go run ./cmd/demo-cli --relay=http://localhost:8080 --message="hello bob"
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/parley-net/parley/crypto"
	"github.com/parley-net/parley/protocol"
	"github.com/parley-net/parley/services"
	"github.com/parley-net/parley/session"
)

type endpoint struct {
	id      string
	pubKey  crypto.PublicKey
	privKey crypto.PrivateKey
	client  *services.RelayClient
}

func newEndpoint(relayURL, id string) (*endpoint, error) {
	pub, priv, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating identity key: %w", err)
	}
	return &endpoint{
		id:      id,
		pubKey:  pub,
		privKey: priv,
		client:  services.NewRelayClient(relayURL, priv),
	}, nil
}

func main() {
	var (
		relayURL = flag.String("relay", "http://localhost:8080", "Relay base URL")
		message  = flag.String("message", "the eagle lands at midnight", "Message to send")
	)
	flag.Parse()

	if err := run(*relayURL, *message); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(relayURL, message string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Fresh identities per run so repeated demos don't collide.
	suffix := uuid.NewString()[:8]
	alice, err := newEndpoint(relayURL, "alice-"+suffix)
	if err != nil {
		return err
	}
	bob, err := newEndpoint(relayURL, "bob-"+suffix)
	if err != nil {
		return err
	}

	fmt.Println("== Registration ==")
	for _, ep := range []*endpoint{alice, bob} {
		err := ep.client.RegisterIdentity(ctx, &protocol.Identity{
			ID:                 ep.id,
			PublicKey:          ep.pubKey,
			SignatureAlgorithm: protocol.SignatureAlgorithmEd25519,
		})
		if err != nil {
			return fmt.Errorf("registering %s: %w", ep.id, err)
		}
		fmt.Printf("registered %s (%s...)\n", ep.id, ep.pubKey.String()[:16])
	}

	fmt.Println("\n== Key exchange ==")
	aliceHS, err := session.NewHandshake(alice.id, bob.id, alice.privKey)
	if err != nil {
		return err
	}
	rec, err := alice.client.Initiate(ctx, &services.InitiateRequest{
		InitiatorID:  alice.id,
		ResponderID:  bob.id,
		EphemeralKey: aliceHS.EphemeralKey().Bytes(),
		Signature:    aliceHS.Signature(),
		Timestamp:    aliceHS.Timestamp(),
	})
	if err != nil {
		return fmt.Errorf("initiating exchange: %w", err)
	}
	fmt.Printf("%s initiated exchange %s\n", alice.id, rec.ID)

	// Bob discovers the pending exchange by polling, like a real responder.
	pending, err := bob.client.Pending(ctx, bob.id)
	if err != nil {
		return fmt.Errorf("listing pending exchanges: %w", err)
	}
	if len(pending) == 0 {
		return fmt.Errorf("no pending exchange found for %s", bob.id)
	}
	fmt.Printf("%s found %d pending exchange(s)\n", bob.id, len(pending))

	bobHS, err := session.NewHandshake(bob.id, alice.id, bob.privKey)
	if err != nil {
		return err
	}
	completed, err := bob.client.Respond(ctx, rec.ID, &services.RespondRequest{
		ResponderID:  bob.id,
		EphemeralKey: bobHS.EphemeralKey().Bytes(),
		Signature:    bobHS.Signature(),
		Timestamp:    bobHS.Timestamp(),
	})
	if err != nil {
		return fmt.Errorf("responding to exchange: %w", err)
	}
	fmt.Printf("%s responded, exchange state: %s\n", bob.id, completed.State)

	fmt.Println("\n== Session derivation ==")
	bobSession, err := bobHS.Establish(completed, alice.pubKey)
	if err != nil {
		return fmt.Errorf("deriving bob's session: %w", err)
	}

	// Alice fetches the completed record to learn bob's ephemeral key.
	aliceView, err := alice.client.GetExchange(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("fetching completed exchange: %w", err)
	}
	aliceSession, err := aliceHS.Establish(aliceView, bob.pubKey)
	if err != nil {
		return fmt.Errorf("deriving alice's session: %w", err)
	}

	fmt.Println("\n== Key confirmation ==")
	err = alice.client.Confirm(ctx, rec.ID, &services.ConfirmRequest{
		UserID:          alice.id,
		ConfirmationTag: aliceSession.ConfirmationTag(),
	})
	if err != nil {
		return fmt.Errorf("attaching confirmation tag: %w", err)
	}

	confirmed, err := bob.client.GetExchange(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("fetching confirmation tag: %w", err)
	}
	if err := bobSession.VerifyPeerConfirmation(confirmed.ConfirmationTag); err != nil {
		return fmt.Errorf("key confirmation failed: %w", err)
	}
	fmt.Println("both endpoints derived the same session key")

	fmt.Println("\n== Secure messaging ==")
	sealed, err := aliceSession.Seal([]byte(message))
	if err != nil {
		return fmt.Errorf("sealing message: %w", err)
	}
	if err := alice.client.SubmitMessage(ctx, sealed); err != nil {
		return fmt.Errorf("submitting message: %w", err)
	}
	fmt.Printf("%s sent %d ciphertext bytes (seq %d)\n", alice.id, len(sealed.Ciphertext), sealed.SequenceNumber)

	inbox, err := bob.client.FetchMessages(ctx, bob.id, time.Time{})
	if err != nil {
		return fmt.Errorf("fetching messages: %w", err)
	}
	if len(inbox) == 0 {
		return fmt.Errorf("no messages delivered to %s", bob.id)
	}

	plaintext, err := bobSession.Open(inbox[len(inbox)-1])
	if err != nil {
		return fmt.Errorf("opening message: %w", err)
	}
	fmt.Printf("%s decrypted: %q\n", bob.id, string(plaintext))

	// A straight replay of the same envelope must be refused by the relay.
	fmt.Println("\n== Replay check ==")
	if err := alice.client.SubmitMessage(ctx, sealed); err != nil {
		fmt.Printf("replayed message rejected as expected: %v\n", err)
	} else {
		return fmt.Errorf("relay accepted a replayed message")
	}

	fmt.Println("\ndemo complete")
	return nil
}
