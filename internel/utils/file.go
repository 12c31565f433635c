package utils

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ReadBinary reads a little endian dump of fixed size values.
func ReadBinary[T any](filename string) ([]T, error) {

	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}

	var zero T
	numElements := int(fileInfo.Size()) / binary.Size(zero)
	data := make([]T, numElements)

	err = binary.Read(file, binary.LittleEndian, &data)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return data, nil
}

func WriteBinary[T any](filename string, data []T) error {

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	err = binary.Write(file, binary.LittleEndian, data)
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	return file.Close()
}

// ReadTxt reads whitespace separated values.
func ReadTxt[T any](filename string) ([]T, error) {

	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var data []T
	for {
		var element T
		_, err := fmt.Fscan(file, &element)
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		data = append(data, element)
	}

	return data, nil
}

// WriteTxt writes f(element) for every element, one per line.
func WriteTxt[V, T any](filename string, data []T, f func(T) V) error {

	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	for _, element := range data {
		_, err := fmt.Fprintln(file, f(element))
		if err != nil {
			return fmt.Errorf("failed to write file: %w", err)
		}
	}

	return file.Close()
}
