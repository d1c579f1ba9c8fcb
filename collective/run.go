package collective

import "fmt"

// RunRaggedAllToAll stages the four dynamic index arrays to hostBuffer,
// computes per-peer payload slices and exchanges them with every rank in the
// group. All sends and receives are issued inside one GroupStart/GroupEnd
// scope, in ascending peer order; every participant must enumerate peers in
// the same order or the position-based pairing breaks.
func RunRaggedAllToAll(comm Communicator, rowElementCount int64, buffers []DeviceBufferPair, stream Stream, hostBuffer *HostBuffer) error {
	return runRaggedAllToAll(comm, rowElementCount, buffers, stream, hostBuffer, nil)
}

func runRaggedAllToAll(comm Communicator, rowElementCount int64, buffers []DeviceBufferPair, stream Stream, hostBuffer *HostBuffer, hooks *runHooks) error {
	if comm == nil || stream == nil {
		return fmt.Errorf("collective: ragged all-to-all requires a communicator and a stream")
	}
	if rowElementCount < 1 {
		return fmt.Errorf("collective: non-positive row element count %d", rowElementCount)
	}
	if len(buffers) != numRaggedOperands {
		return fmt.Errorf("%w: got %d device buffers, want %d", ErrBufferMismatch, len(buffers), numRaggedOperands)
	}
	device := stream.Device()

	hooks.setStage("register")
	if err := maybeRegisterBuffers(comm, device, buffers); err != nil {
		return err
	}

	hooks.setStage("num_ranks")
	numRanks, err := comm.NumRanks()
	if err != nil {
		return fmt.Errorf("collective: query group size on device %d: %w", device.Ordinal(), err)
	}

	hooks.setStage("staging")
	indices, err := loadIndexBuffers(stream, buffers, hostBuffer)
	if err != nil {
		return err
	}
	hooks.stagingCompleted()

	inputOffsets := indices[0]
	sendSizes := indices[1]
	outputOffsets := indices[2]
	recvSizes := indices[3]

	hooks.setStage("group_start")
	if err := comm.GroupStart(); err != nil {
		return fmt.Errorf("collective: begin group scope on device %d: %w", device.Ordinal(), err)
	}

	hooks.setStage("transfer")
	data := buffers[operandPayload]
	for peer := 0; peer < numRanks; peer++ {
		sendOffset, err := inputOffsets.At(peer)
		if err != nil {
			return fmt.Errorf("collective: decode input offset for peer %d: %w", peer, err)
		}
		sendRows, err := sendSizes.At(peer)
		if err != nil {
			return fmt.Errorf("collective: decode send size for peer %d: %w", peer, err)
		}
		recvOffset, err := outputOffsets.At(peer)
		if err != nil {
			return fmt.Errorf("collective: decode output offset for peer %d: %w", peer, err)
		}
		recvRows, err := recvSizes.At(peer)
		if err != nil {
			return fmt.Errorf("collective: decode recv size for peer %d: %w", peer, err)
		}

		sendCount := sendRows * rowElementCount
		sendSlice, err := Slice(data.Source, data.Element, sendOffset*rowElementCount, sendCount)
		if err != nil {
			return fmt.Errorf("collective: send slice for peer %d: %w", peer, err)
		}
		recvCount := recvRows * rowElementCount
		recvSlice, err := Slice(data.Destination, data.Element, recvOffset*rowElementCount, recvCount)
		if err != nil {
			return fmt.Errorf("collective: recv slice for peer %d: %w", peer, err)
		}

		if err := comm.Send(sendSlice, data.Element, sendCount, peer, stream); err != nil {
			return fmt.Errorf("collective: send to peer %d on device %d: %w", peer, device.Ordinal(), err)
		}
		hooks.sendPosted(peer)

		if err := comm.Recv(recvSlice, data.Element, recvCount, peer, stream); err != nil {
			return fmt.Errorf("collective: recv from peer %d on device %d: %w", peer, device.Ordinal(), err)
		}
		hooks.receivePosted(peer)
	}

	hooks.setStage("group_end")
	if err := comm.GroupEnd(); err != nil {
		return fmt.Errorf("collective: end group scope on device %d: %w", device.Ordinal(), err)
	}
	return nil
}

// loadIndexBuffers copies the four index arrays from device memory into four
// contiguous, non-overlapping sub-regions of the staging buffer, then blocks
// until the copies complete. The blocking wait is mandatory: the staged
// values determine the byte ranges of the subsequent sends and receives.
func loadIndexBuffers(stream Stream, buffers []DeviceBufferPair, hostBuffer *HostBuffer) ([4]IndexArray, error) {
	var indices [4]IndexArray
	device := stream.Device()

	rows := buffers[operandInputOffsets].ElementCount
	stride := rows * stagingWordSize
	host := hostBuffer.Bytes()
	if int64(len(host)) < 4*stride {
		return indices, fmt.Errorf("collective: staging buffer holds %d bytes, need %d for %d rows", len(host), 4*stride, rows)
	}

	for i := 0; i < 4; i++ {
		src := buffers[operandInputOffsets+i]
		size := src.Source.ByteSize()
		if size > stride {
			return indices, fmt.Errorf("%w: index binding %d holds %d bytes, staging stride is %d", ErrBufferMismatch, operandInputOffsets+i, size, stride)
		}
		region := host[int64(i)*stride : int64(i)*stride+size]
		if err := stream.MemcpyDeviceToHost(region, src.Source); err != nil {
			return indices, fmt.Errorf("collective: stage %s on device %d: %w", operandName(operandInputOffsets+i), device.Ordinal(), err)
		}
		indices[i] = NewIndexArray(region, src.Element)
	}

	if err := stream.BlockUntilDone(); err != nil {
		return indices, fmt.Errorf("collective: failed to complete staging copies on device %d stream: %w", device.Ordinal(), err)
	}
	return indices, nil
}

// maybeRegisterBuffers engages the communicator's zero-copy fast path when it
// supports registration. No-op otherwise.
func maybeRegisterBuffers(comm Communicator, device Device, buffers []DeviceBufferPair) error {
	registrar, ok := comm.(BufferRegistrar)
	if !ok {
		return nil
	}
	if err := registrar.RegisterBuffers(device, buffers); err != nil {
		return fmt.Errorf("collective: register buffers on device %d: %w", device.Ordinal(), err)
	}
	return nil
}
