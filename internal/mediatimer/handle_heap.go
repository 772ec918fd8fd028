package mediatimer

type handleHeap []*handle

func (h handleHeap) Len() int {
	return len(h)
}

func (h handleHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		if h[i].firedPass != h[j].firedPass {
			return h[i].firedPass < h[j].firedPass
		}
		return h[i].id < h[j].id
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h handleHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *handleHeap) Push(x any) {
	v := x.(*handle)
	v.index = len(*h)
	*h = append(*h, v)
}

func (h *handleHeap) Pop() any {
	old := *h
	n := len(old)
	v := old[n-1]
	old[n-1] = nil
	v.index = -1
	*h = old[:n-1]
	return v
}
