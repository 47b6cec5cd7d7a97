// Package heapmock provides gomock test doubles for the evacuator's
// external collaborator interfaces (internal/heap.RootScanner,
// SpecialReferenceManager, BootHeapScanner, CodeScanner, FromSpaceHooks).
//
// The shape here matches what go.uber.org/mock/mockgen would emit for
// those interfaces; it is hand-written rather than generated because this
// module vendors no code generator, but callers use it exactly as they
// would a mockgen-produced package: construct with NewMock*, set
// expectations through EXPECT().
package heapmock

import (
	reflect "reflect"

	gomock "go.uber.org/mock/gomock"
)

// MockRootScanner is a mock of heap.RootScanner.
type MockRootScanner struct {
	ctrl     *gomock.Controller
	recorder *MockRootScannerMockRecorder
}

type MockRootScannerMockRecorder struct {
	mock *MockRootScanner
}

func NewMockRootScanner(ctrl *gomock.Controller) *MockRootScanner {
	m := &MockRootScanner{ctrl: ctrl}
	m.recorder = &MockRootScannerMockRecorder{m}

	return m
}

func (m *MockRootScanner) EXPECT() *MockRootScannerMockRecorder { return m.recorder }

func (m *MockRootScanner) ScanRoots(visit func(slotAddr uintptr)) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "ScanRoots", visit)
}

func (mr *MockRootScannerMockRecorder) ScanRoots(visit interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()

	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ScanRoots",
		reflect.TypeOf((*MockRootScanner)(nil).ScanRoots), visit)
}

// MockSpecialReferenceManager is a mock of heap.SpecialReferenceManager.
type MockSpecialReferenceManager struct {
	ctrl     *gomock.Controller
	recorder *MockSpecialReferenceManagerMockRecorder
}

type MockSpecialReferenceManagerMockRecorder struct {
	mock *MockSpecialReferenceManager
}

func NewMockSpecialReferenceManager(ctrl *gomock.Controller) *MockSpecialReferenceManager {
	m := &MockSpecialReferenceManager{ctrl: ctrl}
	m.recorder = &MockSpecialReferenceManagerMockRecorder{m}

	return m
}

func (m *MockSpecialReferenceManager) EXPECT() *MockSpecialReferenceManagerMockRecorder {
	return m.recorder
}

func (m *MockSpecialReferenceManager) ScanSpecialReferents(visit func(slotAddr uintptr)) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "ScanSpecialReferents", visit)
}

func (mr *MockSpecialReferenceManagerMockRecorder) ScanSpecialReferents(visit interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()

	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ScanSpecialReferents",
		reflect.TypeOf((*MockSpecialReferenceManager)(nil).ScanSpecialReferents), visit)
}

// MockBootHeapScanner is a mock of heap.BootHeapScanner.
type MockBootHeapScanner struct {
	ctrl     *gomock.Controller
	recorder *MockBootHeapScannerMockRecorder
}

type MockBootHeapScannerMockRecorder struct {
	mock *MockBootHeapScanner
}

func NewMockBootHeapScanner(ctrl *gomock.Controller) *MockBootHeapScanner {
	m := &MockBootHeapScanner{ctrl: ctrl}
	m.recorder = &MockBootHeapScannerMockRecorder{m}

	return m
}

func (m *MockBootHeapScanner) EXPECT() *MockBootHeapScannerMockRecorder { return m.recorder }

func (m *MockBootHeapScanner) ScanBootHeap(visit func(slotAddr uintptr)) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "ScanBootHeap", visit)
}

func (mr *MockBootHeapScannerMockRecorder) ScanBootHeap(visit interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()

	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ScanBootHeap",
		reflect.TypeOf((*MockBootHeapScanner)(nil).ScanBootHeap), visit)
}

// MockCodeScanner is a mock of heap.CodeScanner.
type MockCodeScanner struct {
	ctrl     *gomock.Controller
	recorder *MockCodeScannerMockRecorder
}

type MockCodeScannerMockRecorder struct {
	mock *MockCodeScanner
}

func NewMockCodeScanner(ctrl *gomock.Controller) *MockCodeScanner {
	m := &MockCodeScanner{ctrl: ctrl}
	m.recorder = &MockCodeScannerMockRecorder{m}

	return m
}

func (m *MockCodeScanner) EXPECT() *MockCodeScannerMockRecorder { return m.recorder }

func (m *MockCodeScanner) ScanMutableCode(visit func(slotAddr uintptr)) {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "ScanMutableCode", visit)
}

func (mr *MockCodeScannerMockRecorder) ScanMutableCode(visit interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()

	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "ScanMutableCode",
		reflect.TypeOf((*MockCodeScanner)(nil).ScanMutableCode), visit)
}

// MockFromSpaceHooks is a mock of heap.FromSpaceHooks.
type MockFromSpaceHooks struct {
	ctrl     *gomock.Controller
	recorder *MockFromSpaceHooksMockRecorder
}

type MockFromSpaceHooksMockRecorder struct {
	mock *MockFromSpaceHooks
}

func NewMockFromSpaceHooks(ctrl *gomock.Controller) *MockFromSpaceHooks {
	m := &MockFromSpaceHooks{ctrl: ctrl}
	m.recorder = &MockFromSpaceHooksMockRecorder{m}

	return m
}

func (m *MockFromSpaceHooks) EXPECT() *MockFromSpaceHooksMockRecorder { return m.recorder }

func (m *MockFromSpaceHooks) DoBeforeGC() {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "DoBeforeGC")
}

func (mr *MockFromSpaceHooksMockRecorder) DoBeforeGC() *gomock.Call {
	mr.mock.ctrl.T.Helper()

	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "DoBeforeGC",
		reflect.TypeOf((*MockFromSpaceHooks)(nil).DoBeforeGC))
}

func (m *MockFromSpaceHooks) DoAfterGC() {
	m.ctrl.T.Helper()
	m.ctrl.Call(m, "DoAfterGC")
}

func (mr *MockFromSpaceHooksMockRecorder) DoAfterGC() *gomock.Call {
	mr.mock.ctrl.T.Helper()

	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "DoAfterGC",
		reflect.TypeOf((*MockFromSpaceHooks)(nil).DoAfterGC))
}
