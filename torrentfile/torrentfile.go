// Package torrentfile reads a bencoded .torrent descriptor into the
// read-only Info this module's download core operates on. The full
// .torrent encoder/decoder is out of scope for the core subsystem (see
// spec.md §1); this package is the thin reader that supplies the
// torrentfile.Info the orchestrator and piece scheduler consume, grounded
// on gtorrent's original torrent.TorrentFromBencodeData.
package torrentfile

import (
	"crypto/sha1"
	"fmt"

	"gtorrent/bencode"
)

// BlockSize is the fixed block size (2^14 bytes) used for peer requests.
const BlockSize = 16 * 1024

// File describes one entry of a multi-file torrent, or the sole entry of a
// single-file torrent.
type File struct {
	Length int64
	Path   string
}

// Info is the read-only torrent descriptor: piece layout, digests, and the
// file list.
type Info struct {
	Name        string
	Announce    []string
	PieceLength int64
	Pieces      [][20]byte // H[0..P)
	Files       []File
	Length      int64 // N = sum of file lengths
	InfoHash    [20]byte
}

// NumPieces returns P, the piece count.
func (info *Info) NumPieces() int {
	return len(info.Pieces)
}

// PieceLen returns L_i: info.PieceLength for every piece except the last,
// which is truncated to N mod L (or L when N mod L == 0). Implements the
// piece length law of spec.md §8.
func (info *Info) PieceLen(i int) int64 {
	if i < 0 || i >= info.NumPieces() {
		return 0
	}
	if i < info.NumPieces()-1 {
		return info.PieceLength
	}
	last := info.Length - info.PieceLength*int64(info.NumPieces()-1)
	if last <= 0 {
		return info.PieceLength
	}
	return last
}

// NumBlocks returns the number of BlockSize blocks piece i is divided into.
func (info *Info) NumBlocks(i int) int {
	l := info.PieceLen(i)
	return int((l + BlockSize - 1) / BlockSize)
}

// BlockLen returns the length of block j of piece i.
func (info *Info) BlockLen(i, j int) int64 {
	pieceLen := info.PieceLen(i)
	begin := int64(j) * BlockSize
	if begin >= pieceLen {
		return 0
	}
	if remaining := pieceLen - begin; remaining < BlockSize {
		return remaining
	}
	return BlockSize
}

// FromBytes decodes a bencoded .torrent file's bytes into an Info.
func FromBytes(data []byte) (*Info, error) {
	root, _, err := bencode.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("torrentfile: decoding bencode: %w", err)
	}
	return FromBencodeData(root)
}

// FromBencodeData converts an already-decoded bencode tree into an Info.
func FromBencodeData(root *bencode.Data) (*Info, error) {
	if root == nil {
		return nil, fmt.Errorf("torrentfile: empty descriptor")
	}
	rootDict := root.AsDict()
	infoField, ok := rootDict["info"]
	if !ok {
		return nil, fmt.Errorf("torrentfile: missing info dict")
	}
	infoDict := infoField.AsDict()

	info := &Info{}

	if announce, ok := rootDict["announce-list"]; ok {
		for _, tierData := range announce.AsList() {
			for _, a := range tierData.AsList() {
				info.Announce = append(info.Announce, a.AsString())
			}
		}
	}
	if announce, ok := rootDict["announce"]; ok {
		info.Announce = appendUnique(info.Announce, announce.AsString())
	}

	if name, ok := infoDict["name"]; ok {
		info.Name = name.AsString()
	}

	pieceLenField, ok := infoDict["piece length"]
	if !ok {
		return nil, fmt.Errorf("torrentfile: missing piece length")
	}
	info.PieceLength = pieceLenField.AsInt()
	if info.PieceLength <= 0 {
		return nil, fmt.Errorf("torrentfile: piece length must be positive")
	}

	piecesField, ok := infoDict["pieces"]
	if !ok {
		return nil, fmt.Errorf("torrentfile: missing pieces")
	}
	piecesBytes := piecesField.AsBytes()
	if len(piecesBytes)%20 != 0 {
		return nil, fmt.Errorf("torrentfile: pieces length %d not a multiple of 20", len(piecesBytes))
	}
	info.Pieces = make([][20]byte, len(piecesBytes)/20)
	for i := range info.Pieces {
		copy(info.Pieces[i][:], piecesBytes[i*20:(i+1)*20])
	}

	if filesField, ok := infoDict["files"]; ok {
		for _, fileData := range filesField.AsList() {
			fileDict := fileData.AsDict()
			f := File{Length: fileDict["length"].AsInt()}
			if pathField, ok := fileDict["path"]; ok {
				pathParts := pathField.AsList()
				for i, p := range pathParts {
					f.Path += p.AsString()
					if i < len(pathParts)-1 {
						f.Path += "/"
					}
				}
			}
			info.Files = append(info.Files, f)
			info.Length += f.Length
		}
	} else {
		lengthField, ok := infoDict["length"]
		if !ok {
			return nil, fmt.Errorf("torrentfile: single-file descriptor missing length")
		}
		info.Length = lengthField.AsInt()
		info.Files = []File{{Length: info.Length, Path: info.Name}}
	}

	expectedPieces := (info.Length + info.PieceLength - 1) / info.PieceLength
	if expectedPieces != int64(len(info.Pieces)) {
		return nil, fmt.Errorf("torrentfile: piece count %d does not match length/piece-length (%d)", len(info.Pieces), expectedPieces)
	}

	info.InfoHash = sha1.Sum(infoField.ToBytes())

	return info, nil
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
