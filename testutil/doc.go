/*
Package testutil provides test data generators for the key-exchange protocol.

It covers the fixtures most tests need: identity key pairs, signed handshake
halves, exchange records in any lifecycle state, and sealed secure messages.
Generators use the option pattern so tests only spell out what they care
about:

	ident := testutil.NewTestIdentity(t, "alice")

	rec := testutil.NewTestExchange(ident, peer,
	    testutil.WithState(protocol.ExchangeCompleted),
	    testutil.WithExpiry(time.Now().Add(-time.Minute)),
	)

This package is intended for testing purposes only and should not be used in
production code.
*/
package testutil
