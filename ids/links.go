package ids

// NetAddr is a transport address a peer can be dialed on. Only the shape
// is carried here: the core does not dial peers itself (routing between
// brokers is a Non-goal), but PeerAdvert values still need to round-trip
// through the wire codec.
type NetAddr struct {
	Host     string
	Port     uint16
	Protocol NetTransport
}

// NetTransport enumerates the transports a NetAddr can name.
type NetTransport uint8

const (
	NetTransportTLS NetTransport = iota
	NetTransportQUIC
)

// PeerAdvert is a signed advertisement of a peer's presence, carried in
// OverlayJoinV0.peers (see SPEC_FULL.md §C.2). The flood that would
// propagate these across an overlay mesh is a Non-goal; the broker only
// records the advertised peer id in the overlay's peer set and forwards
// nothing.
type PeerAdvert struct {
	Peer      PeerId
	Subs      BloomFilter
	Addresses []NetAddr
	Version   uint16
	Metadata  []byte
	Sig       Sig
	TTL       uint8
}

// RepoLink is the invitation a client uses to join a repository's overlay:
// the repo's public key, its overlay secret, and a set of bootstrap peers.
type RepoLink struct {
	Id     PubKey
	Secret SymKey
	Peers  []PeerAdvert
}

// RepoKeys is a repository owner's full key material: the repo private
// key plus everything in a RepoLink.
type RepoKeys struct {
	Key    PrivKey
	Secret SymKey
	Peers  []PeerAdvert
}

// Link returns the RepoLink view of a RepoKeys value (the public part an
// owner would pass to a collaborator).
func (rk RepoKeys) Link() RepoLink {
	return RepoLink{
		Id:     rk.Key.Public(),
		Secret: rk.Secret,
		Peers:  rk.Peers,
	}
}

// ObjectRef is a reference to an object's root block together with the
// key needed to decrypt it, as carried by an ObjectLink.
type ObjectRef struct {
	Id  ObjectId
	Key SymKey
}

// ObjectLink bundles a repository key, a set of object ids and the
// decryption keys for those objects, so a link can be handed to a
// non-member of the repository (see SPEC_FULL.md §C.7).
type ObjectLink struct {
	Repo PubKey
	Ids  []ObjectId
	Keys []ObjectRef
}
