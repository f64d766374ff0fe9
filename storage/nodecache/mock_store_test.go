package nodecache

// Hand-maintained in the shape mockgen would produce for merkle.Store;
// the interface is small enough that regenerating it isn't worth a
// go:generate dependency on the mockgen binary.

import (
	"reflect"

	"github.com/golang/mock/gomock"

	"github.com/smtree/smt/merkle"
)

type MockStore struct {
	ctrl     *gomock.Controller
	recorder *MockStoreRecorder
}

type MockStoreRecorder struct {
	mock *MockStore
}

func NewMockStore(ctrl *gomock.Controller) *MockStore {
	m := &MockStore{ctrl: ctrl}
	m.recorder = &MockStoreRecorder{m}
	return m
}

func (m *MockStore) EXPECT() *MockStoreRecorder {
	return m.recorder
}

func (m *MockStore) GetBranch(h merkle.H256) (merkle.BranchNode, bool, error) {
	ret := m.ctrl.Call(m, "GetBranch", h)
	return ret[0].(merkle.BranchNode), ret[1].(bool), castErr(ret[2])
}

func (mr *MockStoreRecorder) GetBranch(h interface{}) *gomock.Call {
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetBranch", reflect.TypeOf((*MockStore)(nil).GetBranch), h)
}

func (m *MockStore) GetLeaf(h merkle.H256) (merkle.LeafNode, bool, error) {
	ret := m.ctrl.Call(m, "GetLeaf", h)
	return ret[0].(merkle.LeafNode), ret[1].(bool), castErr(ret[2])
}

func (mr *MockStoreRecorder) GetLeaf(h interface{}) *gomock.Call {
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "GetLeaf", reflect.TypeOf((*MockStore)(nil).GetLeaf), h)
}

func (m *MockStore) InsertBranch(h merkle.H256, b merkle.BranchNode) error {
	ret := m.ctrl.Call(m, "InsertBranch", h, b)
	return castErr(ret[0])
}

func (mr *MockStoreRecorder) InsertBranch(h, b interface{}) *gomock.Call {
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "InsertBranch", reflect.TypeOf((*MockStore)(nil).InsertBranch), h, b)
}

func (m *MockStore) InsertLeaf(h merkle.H256, l merkle.LeafNode) error {
	ret := m.ctrl.Call(m, "InsertLeaf", h, l)
	return castErr(ret[0])
}

func (mr *MockStoreRecorder) InsertLeaf(h, l interface{}) *gomock.Call {
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "InsertLeaf", reflect.TypeOf((*MockStore)(nil).InsertLeaf), h, l)
}

func (m *MockStore) RemoveBranch(h merkle.H256) error {
	ret := m.ctrl.Call(m, "RemoveBranch", h)
	return castErr(ret[0])
}

func (mr *MockStoreRecorder) RemoveBranch(h interface{}) *gomock.Call {
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "RemoveBranch", reflect.TypeOf((*MockStore)(nil).RemoveBranch), h)
}

func (m *MockStore) RemoveLeaf(h merkle.H256) error {
	ret := m.ctrl.Call(m, "RemoveLeaf", h)
	return castErr(ret[0])
}

func (mr *MockStoreRecorder) RemoveLeaf(h interface{}) *gomock.Call {
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "RemoveLeaf", reflect.TypeOf((*MockStore)(nil).RemoveLeaf), h)
}

func (m *MockStore) Branches() map[merkle.H256]merkle.BranchNode {
	ret := m.ctrl.Call(m, "Branches")
	return ret[0].(map[merkle.H256]merkle.BranchNode)
}

func (mr *MockStoreRecorder) Branches() *gomock.Call {
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Branches", reflect.TypeOf((*MockStore)(nil).Branches))
}

func (m *MockStore) Leaves() map[merkle.H256]merkle.LeafNode {
	ret := m.ctrl.Call(m, "Leaves")
	return ret[0].(map[merkle.H256]merkle.LeafNode)
}

func (mr *MockStoreRecorder) Leaves() *gomock.Call {
	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Leaves", reflect.TypeOf((*MockStore)(nil).Leaves))
}

func castErr(v interface{}) error {
	if v == nil {
		return nil
	}
	return v.(error)
}
