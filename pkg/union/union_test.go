package union

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lucasbrambrink/deepvariant/pkg/ptrs"
)

type fileBackend struct {
	HostPath string `json:"host_path"`
}

type bucketBackend struct {
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix,omitempty"`
}

type backendUnion struct {
	File   *fileBackend   `union:"type,file" json:"-"`
	Bucket *bucketBackend `union:"type,bucket" json:"-"`
	SaveTo string         `json:"save_to,omitempty"`
}

func TestUnmarshalSelectsMember(t *testing.T) {
	var u backendUnion
	require.NoError(t, Unmarshal([]byte(`{"type":"bucket","bucket":"b","prefix":"p"}`), &u))
	require.Nil(t, u.File)
	require.NotNil(t, u.Bucket)
	require.Equal(t, "b", u.Bucket.Bucket)
	require.Equal(t, "p", u.Bucket.Prefix)
}

func TestUnmarshalClearsOtherMembers(t *testing.T) {
	u := backendUnion{Bucket: &bucketBackend{Bucket: "stale"}}
	require.NoError(t, Unmarshal([]byte(`{"type":"file","host_path":"/ckpt"}`), &u))
	require.Nil(t, u.Bucket)
	require.NotNil(t, u.File)
	require.Equal(t, "/ckpt", u.File.HostPath)
}

func TestUnmarshalRejectsUnknown(t *testing.T) {
	var u backendUnion
	err := Unmarshal([]byte(`{"type":"tape"}`), &u)
	require.ErrorContains(t, err, "unexpected type: tape")

	err = Unmarshal([]byte(`{"type":"file","host_path":"/ckpt","shard":3}`), &u)
	require.ErrorContains(t, err, `unknown field "shard"`)
}

func TestMarshalFlattens(t *testing.T) {
	out, err := Marshal(backendUnion{
		Bucket: &bucketBackend{Bucket: "b"},
		SaveTo: "latest",
	})
	require.NoError(t, err)
	require.JSONEq(t, `{"type":"bucket","bucket":"b","save_to":"latest"}`, string(out))
}

func TestMarshalOmitEmpty(t *testing.T) {
	type union struct {
		OptionA         *struct{} `union:"type,a" json:"-"`
		OptionB         *struct{} `union:"type,b" json:"-"`
		Regular         *string   `json:"regular"`
		ShouldBeOmitted *string   `json:"shouldBeOmitted,omitempty"`
		DontBeOmitted   *string   `json:"dontBeOmitted,omitempty"`
	}

	out, err := Marshal(union{OptionA: &struct{}{}, DontBeOmitted: ptrs.Ptr("test")})
	require.NoError(t, err, "marshal no error")
	require.Equal(t, string(out), `{"dontBeOmitted":"test","regular":null,"type":"a"}`,
		"incorrect unmarshaling")

	type badUnion struct {
		OptionA *struct{} `union:"type,a" json:"-"`
		OptionB *struct{} `union:"type,b" json:"-"`
		BadType *string   `json:"badType,string"`
	}
	_, err = Marshal(badUnion{OptionB: &struct{}{}, BadType: ptrs.Ptr("bad")})
	require.ErrorContains(t, err, "features not support")
}

func TestRoundTrip(t *testing.T) {
	// Shared container fields are filled by the container's own UnmarshalJSON in
	// real configs, so the round trip here covers the union member only.
	in := backendUnion{File: &fileBackend{HostPath: "/data/ckpt"}}
	out, err := Marshal(in)
	require.NoError(t, err)

	var back backendUnion
	require.NoError(t, Unmarshal(out, &back))
	require.Equal(t, in, back)
}
