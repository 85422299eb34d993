// Package service is the typed call surface of the example item service.
// Each method packs its named arguments into a params object and returns a
// Pending result backed by one batched call.
package service

import "time"

// Method names
const (
	MethodCreate      = "create"
	MethodDelete      = "delete"
	MethodGet         = "get"
	MethodGetAll      = "getAll"
	MethodTestMethod  = "testMethod"
	MethodTestMethod2 = "testMethod2"
)

// Data is a free-form attribute bag
type Data map[string]interface{}

// Kind classifies a user
type Kind string

// GeoJSON is a point location
type GeoJSON struct {
	Coordinates []float64 `json:"coordinates200"`
}

// Profile holds contact details
type Profile struct {
	Phone string `json:"phone"`
}

// Recurse is a self-referencing tree node
type Recurse struct {
	Name    string     `json:"name"`
	Recurse []*Recurse `json:"recurse,omitempty"`
}

// User is the item returned by Get and GetAll
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Password  string    `json:"password,omitempty"`
	Point     *GeoJSON  `json:"point,omitempty"`
	LastSeen  time.Time `json:"last_seen"`
	Data      Data      `json:"data,omitempty"`
	Photo     []byte    `json:"photo,omitempty"`
	User      *User     `json:"user,omitempty"`
	Profile   *Profile  `json:"profile,omitempty"`
	Recurse   *Recurse  `json:"recurse,omitempty"`
	Kind      Kind      `json:"kind,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Member references a user by id
type Member struct {
	ID string `json:"id"`
}

// Members is a list of member references
type Members []Member

// DeleteResult is the two-value result of Delete
type DeleteResult struct {
	A string `json:"a"`
	B string `json:"b"`
}

// States is the nested result of TestMethod
type States map[string]map[string][]string

// Params objects, one per method

type createParams struct {
	NewData Data   `json:"newData"`
	Name    string `json:"name"`
	Data    []byte `json:"data"`
}

type deleteParams struct {
	ID uint `json:"id"`
}

type getParams struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	FName string  `json:"fname"`
	Price float32 `json:"price"`
	N     int     `json:"n"`
	B     int     `json:"b"`
	CC    int     `json:"cc"`
}

type getAllParams struct {
	Members Members `json:"members"`
}

type testMethodParams struct {
	Data Data        `json:"data"`
	SS   interface{} `json:"ss"`
}

type testMethod2Params struct {
	NS         string `json:"ns"`
	UType      string `json:"utype"`
	User       string `json:"user"`
	ResType    string `json:"restype"`
	Resource   string `json:"resource"`
	Permission string `json:"permission"`
}
