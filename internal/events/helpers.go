package events

import (
	"encoding/json"
	"fmt"
)

// SetMergeData sets the Data field with MergeData in a type-safe way.
func (e *Event) SetMergeData(data MergeData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert MergeData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetMergeData retrieves MergeData from the Data field.
func (e *Event) GetMergeData() (*MergeData, error) {
	var data MergeData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse MergeData: %w", err)
	}
	return &data, nil
}

// SetCompletionData sets the Data field with CompletionData in a type-safe way.
func (e *Event) SetCompletionData(data CompletionData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert CompletionData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetCompletionData retrieves CompletionData from the Data field.
func (e *Event) GetCompletionData() (*CompletionData, error) {
	var data CompletionData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse CompletionData: %w", err)
	}
	return &data, nil
}

// SetWorkerData sets the Data field with WorkerData in a type-safe way.
func (e *Event) SetWorkerData(data WorkerData) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert WorkerData: %w", err)
	}
	e.Data = dataMap
	return nil
}

// GetWorkerData retrieves WorkerData from the Data field.
func (e *Event) GetWorkerData() (*WorkerData, error) {
	var data WorkerData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse WorkerData: %w", err)
	}
	return &data, nil
}

// structToMap converts a struct to map[string]interface{} using JSON marshaling.
func structToMap(data interface{}) (map[string]interface{}, error) {
	bytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// mapToStruct converts a map[string]interface{} to a struct using JSON unmarshaling.
func mapToStruct(dataMap map[string]interface{}, target interface{}) error {
	bytes, err := json.Marshal(dataMap)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, target)
}
