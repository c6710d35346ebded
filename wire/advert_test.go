package wire_test

import (
	"testing"

	"github.com/lofire/broker/ids"
	"github.com/lofire/broker/wire"
	"github.com/stretchr/testify/require"
)

func TestPeerAdvertRoundTrip(t *testing.T) {
	// k deliberately != 3 (the old hardcoded decode constant), so a
	// regression back to a fixed k would show up as a K() mismatch or a
	// spurious Test() miss/hit.
	subs := ids.NewBloomFilter(512, 5)
	known := ids.TopicId{9, 9, 9}
	subs.Add(ids.Digest(known))

	advert := wire.PeerAdvert{
		Peer:      ids.PeerId{1},
		Subs:      subs,
		Addresses: []ids.NetAddr{{Host: "example.test", Port: 4242, Protocol: ids.NetTransportTLS}},
		Version:   1,
		Metadata:  []byte("meta"),
		Sig:       ids.Sig{2},
		TTL:       3,
	}

	data := wire.EncodePeerAdvert(advert)
	got, err := wire.DecodePeerAdvert(data)
	require.NoError(t, err)

	require.Equal(t, advert.Peer, got.Peer)
	require.Equal(t, subs.K(), got.Subs.K())
	require.True(t, got.Subs.Test(ids.Digest(known)))
	require.False(t, got.Subs.Test(ids.Digest{1, 1, 1}))
	require.Equal(t, advert.Addresses, got.Addresses)
	require.Equal(t, advert.Version, got.Version)
	require.Equal(t, advert.Metadata, got.Metadata)
	require.Equal(t, advert.Sig, got.Sig)
	require.Equal(t, advert.TTL, got.TTL)
}
