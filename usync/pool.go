package usync

import "sync/atomic"

//
// A pool of arbitrary values, recycled through a buffered channel.  New
// supplies a fresh value whenever the channel is empty.  Safe for
// concurrent use.
//
// Example:
//
//	p := Pool{ New: func() interface{} { return new(bytes.Buffer) } }
//	v := p.Get()
//	...
//	p.Put(v)
//
type Pool struct {
	New func() interface{}

	once    int32
	stopped int32
	values  chan interface{}
}

const poolSize_ = 32

func (this *Pool) construct() {
	if 0 == atomic.LoadInt32(&this.once) &&
		atomic.CompareAndSwapInt32(&this.once, 0, 1) {
		this.values = make(chan interface{}, poolSize_)
	}
}

//
// get a value from the pool, creating one with New if the pool is empty.
//
// after Stop, Get always returns nil.
//
func (this *Pool) Get() (rv interface{}) {
	if 0 != atomic.LoadInt32(&this.stopped) {
		return nil
	}
	this.construct()
	select {
	case rv = <-this.values:
	default:
		rv = this.New()
	}
	return
}

//
// return a value to the pool for reuse.  discarded if the pool is full or
// has been stopped.
//
func (this *Pool) Put(v interface{}) {
	if nil == v || 0 != atomic.LoadInt32(&this.stopped) {
		return
	}
	this.construct()
	select {
	case this.values <- v:
	default:
	}
}

//
// stop the pool.  after Stop, Get always returns nil and Put always
// discards.
//
func (this *Pool) Stop() {
	atomic.StoreInt32(&this.stopped, 1)
}

/*

import (
	"sync"

	"github.com/tredeske/sftp/uconfig"
)

//
// A pool of workers
//
// Example:
//    pool := u.WorkPool{}
//
//    // start a bunch of workers
//    pool.Go( 2,
//        func(req interface{}) (resp interface{}) {
//            ...
//        })
//
//    go func() { // feeder feeds requests to pool
//        for ... {
//            pool.RequestC <- ...
//        }
//        pool.Close() // feeder closes pool
//    }()
//
//    for resp:= range pool.ResponceC { // collect results
//        ...
//    }
//    pool.Drain()
//
type WorkPool struct {
	stopNow   AtomicBool
	RequestC  ItChan
	ResponseC ItChan
}

//
// start N workers to perform processing
//
func (this *WorkPool) Go(workers int, work func(interface{}) interface{}) {

	if nil == this.RequestC {
		this.RequestC = make(chan interface{}, workers*2)
	}
	if nil == this.ResponseC {
		this.ResponseC = make(chan interface{}, workers*2)
	}

	var wg sync.WaitGroup
	wg.Add(workers)

	//
	// the workers
	//
	for i := 0; i < workers; i++ {
		go func() {
			for req := range this.RequestC {

				if this.stopNow.IsSet() { // don't do any work if stopped
					break
				}

				resp := work(req)
				this.ResponseC <- resp

				if this.stopNow.IsSet() { // don't check req chan if stopped
					break
				}
			}
			wg.Done()
		}()
	}

	//
	// when all workers done, close responseC
	//
	go func() {
		defer IgnorePanic()
		wg.Wait()
		close(this.ResponseC)
	}()
}

//
// tell workers to stop immediately.
//
// stop means to not begin any new work and to not check the request chan
// for more work.
//
// this does not close the request chan, so any workers blocked on that chan
// will remain blocked until Close() is called.
//
func (this *WorkPool) StopNow() {
	this.stopNow.Set()
}

//
// did someone throw the big red switch?
//
func (this *WorkPool) IsStopped() bool {
	return this.stopNow.IsSet()
}

//
// Tell the pool there's no more work coming
//
// There may be still results being worked on after this
//
func (this *WorkPool) Close() {
	defer IgnorePanic()
	close(this.RequestC)
}

//
// throw away any remaining responses
//
func (this *WorkPool) Drain() {
	for _ = range this.ResponseC {
	}
}

//
// Get the next result nicely.
//
// rv needs to be a pointer to the type you want
//
// var myStruct *MyStruct // what workers produce
// var pool WorkPool
// conversionError := pool.Next( &myStruct ) // ptr to what workers produce
//
func (this *WorkPool) Next(rv interface{}) (err error) {
	resp := <-this.ResponseC
	if nil != resp {
		err = uconfig.Assign("worker", rv, resp)
	}
	return
}
*/
